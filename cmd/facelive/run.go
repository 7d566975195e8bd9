package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/veridianhq/facelive/pkg/camera"
	"github.com/veridianhq/facelive/pkg/config"
	"github.com/veridianhq/facelive/pkg/detect"
	"github.com/veridianhq/facelive/pkg/liveness"
	"github.com/veridianhq/facelive/pkg/logging"
	"github.com/veridianhq/facelive/pkg/motion"
	"github.com/veridianhq/facelive/pkg/report"
)

// motionSample is the on-disk shape of one device orientation sample.
type motionSample struct {
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
	OffsetMs int64   `json:"offset_ms"`
}

// cmdRun replays a captured frame sequence (plus an optional device
// motion log) through a full liveness session and stores the verdict.
// Live camera integration supplies the same streams; this command is
// the offline verification path.
func cmdRun(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("frames directory required\nUsage: facelive run <frames-dir> [motion-samples.json]")
	}
	framesDir := args[0]

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	framePaths, err := listFrameFiles(framesDir)
	if err != nil {
		return err
	}
	if len(framePaths) == 0 {
		return fmt.Errorf("no frame images found in %s", framesDir)
	}

	detector := detect.NewDlibDetector()
	if err := detector.LoadModels(cfg.Detection.ModelPath); err != nil {
		return fmt.Errorf("failed to load detection models: %w", err)
	}
	defer func() { _ = detector.Close() }()

	estimator := camera.NewLightingEstimator(
		cfg.Camera.MinLightingValue, cfg.Camera.MaxLightingValue, cfg.Camera.GlareHighlightCut)

	tracker := motion.NewTracker(motionConfig(cfg))

	orch := liveness.NewOrchestrator(orchestratorConfig(cfg), tracker)

	start := time.Now()
	frameInterval := time.Second / time.Duration(cfg.Camera.FPS)

	// Feed the motion log up front; recording is timestamp-driven, so
	// replay order relative to frames does not matter.
	if len(args) > 1 {
		if err := loadMotionSamples(args[1], tracker, start); err != nil {
			return err
		}
	}

	var verdict *liveness.Verdict
	for i, path := range framePaths {
		ts := start.Add(time.Duration(i) * frameInterval)
		ev, err := buildFrameEvidence(path, ts, detector, estimator)
		if err != nil {
			// Transient per-frame error: log, skip, continue.
			logging.Warnf("Skipping frame %s: %v", filepath.Base(path), err)
			continue
		}

		result := orch.ProcessFrame(ev)
		if result.ChallengeCompleted != nil {
			fmt.Printf("Challenge completed: %s\n", *result.ChallengeCompleted)
		}
		if result.Verdict != nil {
			verdict = result.Verdict
			break
		}
	}

	snapshot := orch.Snapshot()
	orch.Stop()

	if verdict == nil {
		fmt.Printf("Session did not complete (state: %s, progress: %.0f%%)\n",
			snapshot.State, snapshot.Progress*100)
		fmt.Printf("Last status: %s\n", snapshot.Status)
		return nil
	}

	store, err := report.NewFileStore(cfg.Reports.DataDir, cfg.Reports.EncryptionEnabled)
	if err != nil {
		return err
	}
	rep := report.Report{
		SessionID:        verdict.SessionID,
		Success:          verdict.Success,
		CorrelationScore: verdict.CorrelationScore,
		Challenges:       strings.Fields(strings.Trim(verdict.Metadata["challenges"], "[]")),
		CompletedAt:      time.Now(),
		Duration:         time.Since(start),
		DroppedFrames:    orch.DroppedFrames(),
		Metadata:         verdict.Metadata,
	}
	if err := store.Save(rep); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	if verdict.Success {
		fmt.Printf("Liveness VERIFIED (session %s, correlation %.3f)\n",
			verdict.SessionID, verdict.CorrelationScore)
	} else {
		fmt.Printf("Liveness REJECTED (session %s, correlation %.3f)\n",
			verdict.SessionID, verdict.CorrelationScore)
	}
	return nil
}

func cmdReports(args []string) error {
	store, err := report.NewFileStore(cfg.Reports.DataDir, cfg.Reports.EncryptionEnabled)
	if err != nil {
		return err
	}

	ids, err := store.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No reports stored.")
		return nil
	}

	fmt.Printf("%-38s %-10s %-12s %s\n", "SESSION", "VERDICT", "CORRELATION", "COMPLETED")
	for _, id := range ids {
		rep, err := store.Load(id)
		if err != nil {
			logging.Warnf("Failed to load report %s: %v", id, err)
			continue
		}
		verdict := "rejected"
		if rep.Success {
			verdict = "verified"
		}
		fmt.Printf("%-38s %-10s %-12.3f %s\n",
			rep.SessionID, verdict, rep.CorrelationScore, rep.CompletedAt.Format(time.RFC3339))
	}
	return nil
}

func cmdShow(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("session id required\nUsage: facelive show <session-id>")
	}

	store, err := report.NewFileStore(cfg.Reports.DataDir, cfg.Reports.EncryptionEnabled)
	if err != nil {
		return err
	}

	rep, err := store.Load(args[0])
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// listFrameFiles returns image paths in the directory, sorted by name.
func listFrameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".jpg" || ext == ".jpeg" || ext == ".png" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// buildFrameEvidence decodes one frame image and derives evidence.
func buildFrameEvidence(path string, ts time.Time, detector detect.Detector, estimator *camera.LightingEstimator) (detect.Evidence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return detect.Evidence{}, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return detect.Evidence{}, fmt.Errorf("failed to decode image: %w", err)
	}

	frame := &camera.Frame{
		Data:      data,
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
		Format:    "JPEG",
		Timestamp: ts,
	}

	lighting := estimator.Estimate(img)

	faces, err := detector.Detect(frame)
	if err != nil && err != detect.ErrNoFaceDetected {
		return detect.Evidence{}, err
	}

	return detect.BuildEvidence(frame, faces, lighting), nil
}

// loadMotionSamples reads a device motion log and records it into the
// tracker with timestamps relative to session start.
func loadMotionSamples(path string, tracker *motion.Tracker, start time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read motion samples: %w", err)
	}

	var samples []motionSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return fmt.Errorf("failed to parse motion samples: %w", err)
	}

	for _, s := range samples {
		tracker.Record(motion.Reading{
			Yaw:       s.Yaw,
			Pitch:     s.Pitch,
			Roll:      s.Roll,
			Timestamp: start.Add(time.Duration(s.OffsetMs) * time.Millisecond),
		})
	}

	logging.Debugf("Loaded %d motion samples from %s", len(samples), path)
	return nil
}

// motionConfig maps file configuration onto the tracker settings.
func motionConfig(c *config.Config) motion.Config {
	return motion.Config{
		CorrelationThreshold: c.Motion.CorrelationThreshold,
		MinSamplePairs:       c.Motion.MinSamplePairs,
		MergeTolerance:       time.Duration(c.Motion.MergeToleranceMs) * time.Millisecond,
		Window:               time.Duration(c.Motion.WindowSeconds) * time.Second,
	}
}

// orchestratorConfig maps file configuration onto orchestrator settings.
func orchestratorConfig(c *config.Config) liveness.Config {
	set := make([]liveness.ChallengeType, len(c.Session.ChallengeSet))
	for i, name := range c.Session.ChallengeSet {
		set[i] = liveness.ChallengeType(name)
	}

	return liveness.Config{
		MaxSessionDuration: time.Duration(c.Session.MaxDuration) * time.Second,
		ChallengeSet:       set,
		ChallengeCount:     c.Session.ChallengeCount,
		Centering: liveness.CenteringRules{
			TooCloseRatio:       c.Centering.TooCloseRatio,
			TooFarRatio:         c.Centering.TooFarRatio,
			HorizontalTolerance: c.Centering.HorizontalTolerance,
			VerticalTolerance:   c.Centering.VerticalTolerance,
			GateMinRatio:        c.Centering.GateMinRatio,
			GateMaxRatio:        c.Centering.GateMaxRatio,
			GateOffsetTolerance: c.Centering.GateOffsetTolerance,
		},
		Thresholds: liveness.Thresholds{
			BlinkEAR:           c.Challenge.BlinkEARThreshold,
			EyeOpenEAR:         c.Challenge.EyeOpenEAR,
			TurnYaw:            c.Challenge.TurnYawThreshold,
			SmileRatio:         c.Challenge.SmileRatio,
			MouthOpenRatio:     c.Challenge.MouthOpenRatio,
			MinConfirmSamples:  c.Challenge.MinConfirmSamples,
			MinConfirmDuration: time.Duration(c.Challenge.MinConfirmDuration) * time.Millisecond,
		},
	}
}
