package liveness

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veridianhq/facelive/pkg/detect"
	"github.com/veridianhq/facelive/pkg/logging"
	"github.com/veridianhq/facelive/pkg/motion"
)

// Status messages surfaced outside the centering guidance.
const (
	MsgNoFace       = "No face detected"
	MsgPoorLighting = "Improve lighting conditions"
	MsgCompleted    = "Liveness check complete"
	MsgStopped      = "Session stopped"
	MsgRestarted    = "Session restarted"
)

// Clock abstracts wall-clock time so expiry is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// MotionVerifier is the motion-sensor collaborator contract: an
// independently sampled device-orientation log with a correlation
// check against face-derived head-angle readings.
type MotionVerifier interface {
	VerifyCorrelation(head []motion.Reading) (bool, float64)
	Reset()
}

// Verdict is the final liveness decision for a session, produced
// exactly once when it reaches StateCompleted. Success reflects the
// motion-correlation check alone: completing every challenge is
// necessary but not sufficient.
type Verdict struct {
	SessionID        string
	Success          bool
	CorrelationScore float64
	Metadata         map[string]string
}

// FrameResult is the explicit outcome of processing one evidence
// frame. Events are carried as values rather than fired from inside
// the transition logic.
type FrameResult struct {
	SessionID          string
	State              State
	Status             string
	FaceDetected       bool
	Progress           float64
	Dropped            bool
	SessionReplaced    bool
	ChallengeCompleted *ChallengeType
	Verdict            *Verdict
}

// Snapshot is the read-only view exposed to a presentation layer,
// recomputed after each processed frame.
type Snapshot struct {
	SessionID     string
	State         State
	Progress      float64
	Status        string
	FaceDetected  bool
	LightingValue float64
}

// Callbacks are optional outbound hooks, invoked from frame results
// after the transition logic has run.
type Callbacks struct {
	OnChallengeCompleted func(challengeType string)
	OnLivenessCompleted  func(sessionID string, success bool, metadata map[string]string)
}

// Config holds orchestrator settings.
type Config struct {
	MaxSessionDuration time.Duration
	ChallengeSet       []ChallengeType
	ChallengeCount     int
	Centering          CenteringRules
	Thresholds         Thresholds
	Callbacks          Callbacks
	Clock              Clock
	Rand               *rand.Rand
}

// DefaultConfig returns standard orchestrator settings.
func DefaultConfig() Config {
	return Config{
		MaxSessionDuration: 60 * time.Second,
		ChallengeSet: []ChallengeType{
			ChallengeBlink, ChallengeTurnLeft, ChallengeTurnRight,
			ChallengeSmile, ChallengeOpenMouth,
		},
		ChallengeCount: 3,
		Centering:      DefaultCenteringRules(),
		Thresholds:     DefaultThresholds(),
	}
}

// Orchestrator drives the liveness session: it consumes one evidence
// frame at a time, advances the state machine, emits guidance, and
// issues the final verdict. It exclusively owns the current session
// and replaces it atomically on reset or expiry.
type Orchestrator struct {
	mu      sync.Mutex
	cfg     Config
	catalog *Catalog
	advisor *CenteringAdvisor
	motion  MotionVerifier
	clock   Clock
	rng     *rand.Rand

	session          *Session
	headReadings     []motion.Reading
	challengeHistory []detect.Evidence
	verdictIssued    bool
	stopped          bool
	lastSnapshot     Snapshot

	inFlight      atomic.Bool
	droppedFrames atomic.Int64
}

// NewOrchestrator creates an orchestrator and starts its first session.
func NewOrchestrator(cfg Config, verifier MotionVerifier) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if len(cfg.ChallengeSet) == 0 {
		cfg.ChallengeSet = DefaultConfig().ChallengeSet
	}
	if cfg.ChallengeCount <= 0 {
		cfg.ChallengeCount = DefaultConfig().ChallengeCount
	}
	if cfg.MaxSessionDuration <= 0 {
		cfg.MaxSessionDuration = DefaultConfig().MaxSessionDuration
	}

	o := &Orchestrator{
		cfg:     cfg,
		catalog: NewCatalog(cfg.Thresholds),
		advisor: NewCenteringAdvisor(cfg.Centering),
		motion:  verifier,
		clock:   cfg.Clock,
		rng:     cfg.Rand,
	}
	o.resetLocked(o.clock.Now())
	return o
}

// SessionID returns the current session id.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.ID
}

// Challenges returns a copy of the current session's challenge sequence.
func (o *Orchestrator) Challenges() []Challenge {
	o.mu.Lock()
	defer o.mu.Unlock()
	challenges := make([]Challenge, len(o.session.Challenges))
	copy(challenges, o.session.Challenges)
	return challenges
}

// Snapshot returns the observable state after the last processed frame.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSnapshot
}

// DroppedFrames returns the number of frames shed by the reentrancy
// guard since the orchestrator was created.
func (o *Orchestrator) DroppedFrames() int64 {
	return o.droppedFrames.Load()
}

// Reset replaces the session with a fresh one: new id, new random
// challenge ordering, cleared face and motion history. The swap is
// atomic with respect to a frame in flight.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked(o.clock.Now())
}

// resetLocked performs the session swap. Caller holds mu.
func (o *Orchestrator) resetLocked(now time.Time) {
	challenges := o.catalog.NewSequence(o.cfg.ChallengeSet, o.cfg.ChallengeCount, o.rng)
	old := o.session
	o.session = newSession(challenges, now)
	o.headReadings = nil
	o.challengeHistory = nil
	o.verdictIssued = false
	if o.motion != nil {
		o.motion.Reset()
	}
	o.lastSnapshot = Snapshot{SessionID: o.session.ID, State: o.session.State}

	entry := logging.Session(o.session.ID)
	if old != nil {
		entry = entry.WithField("replaced_session_id", old.ID)
	}
	entry.WithField("challenges", challengeTypeNames(challenges)).Debug("session created")
}

// Stop terminates processing. The caller tears down camera streaming
// and sensor tracking first; any frame still in flight completes
// against the old session and subsequent frames are ignored.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	o.lastSnapshot.Status = MsgStopped
	logging.Session(o.session.ID).Infof(
		"orchestrator stopped (dropped frames: %d)", o.droppedFrames.Load())
}

// ProcessFrame consumes one evidence frame and advances the session.
// If a previous frame is still being processed the new frame is
// dropped, not queued: recency matters more than completeness for a
// live interactive flow.
func (o *Orchestrator) ProcessFrame(ev detect.Evidence) FrameResult {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.droppedFrames.Add(1)
		return FrameResult{Dropped: true}
	}
	defer o.inFlight.Store(false)

	o.mu.Lock()
	result := o.processLocked(ev)
	o.mu.Unlock()

	o.fireCallbacks(result)
	return result
}

// processLocked runs the per-frame transition logic. Caller holds mu.
func (o *Orchestrator) processLocked(ev detect.Evidence) FrameResult {
	if o.stopped {
		return FrameResult{Dropped: true, Status: MsgStopped}
	}

	now := o.clock.Now()

	// Expiry is checked before any other processing and short-circuits
	// the rest of the frame.
	if o.session.Expired(now, o.cfg.MaxSessionDuration) {
		logging.Session(o.session.ID).Info("session expired, restarting")
		o.resetLocked(now)
		result := o.resultLocked(ev, MsgRestarted)
		result.SessionReplaced = true
		o.snapshotLocked(ev, result)
		return result
	}

	// Terminal state: no further evidence is processed until reset.
	if o.session.State == StateCompleted {
		result := o.resultLocked(ev, MsgCompleted)
		o.snapshotLocked(ev, result)
		return result
	}

	if !ev.FaceDetected() {
		result := o.resultLocked(ev, MsgNoFace)
		o.snapshotLocked(ev, result)
		return result
	}

	// Face tracking continues regardless of lighting or state.
	o.recordHeadReading(ev)

	if ev.Lighting.HasGlare {
		// Advisory only: logged, not yet gating.
		logging.Session(o.session.ID).Debug("glare detected in frame")
	}

	var result FrameResult
	switch o.session.State {
	case StateInitial:
		result = o.handleInitial(ev)
	case StateCenteringFace:
		result = o.handleCentering(ev)
	case StatePerformingChallenges:
		result = o.handleChallenges(ev)
	default:
		result = o.resultLocked(ev, "")
	}

	o.snapshotLocked(ev, result)
	return result
}

func (o *Orchestrator) handleInitial(ev detect.Evidence) FrameResult {
	if !ev.Lighting.IsGood {
		return o.resultLocked(ev, MsgPoorLighting)
	}

	o.session.State = StateCenteringFace
	logging.Session(o.session.ID).Debug("face acquired, centering")
	return o.resultLocked(ev, o.advisor.Guide(ev.Face.BoundingBox, ev.FrameWidth, ev.FrameHeight))
}

func (o *Orchestrator) handleCentering(ev detect.Evidence) FrameResult {
	guidance := o.advisor.Guide(ev.Face.BoundingBox, ev.FrameWidth, ev.FrameHeight)

	// The gate is a separate, stricter predicate computed from the same
	// frame as the guidance message.
	if !o.advisor.Centered(ev.Face.BoundingBox, ev.FrameWidth, ev.FrameHeight) {
		return o.resultLocked(ev, guidance)
	}

	o.session.State = StatePerformingChallenges
	o.challengeHistory = nil
	logging.Session(o.session.ID).Debug("face centered, starting challenges")

	active, _ := o.session.ActiveChallenge()
	return o.resultLocked(ev, active.Instruction)
}

func (o *Orchestrator) handleChallenges(ev detect.Evidence) FrameResult {
	active, ok := o.session.ActiveChallenge()
	if !ok {
		// Index already at the end; completion is handled below.
		return o.resultLocked(ev, MsgCompleted)
	}

	// Lighting gates challenge evaluation only. Poor-lighting frames
	// are excluded from the evidence history as well: feature values
	// extracted from them are unreliable.
	if !ev.Lighting.IsGood {
		return o.resultLocked(ev, MsgPoorLighting)
	}

	o.challengeHistory = append(o.challengeHistory, ev)

	if !o.catalog.IsCompleted(active.Type, o.challengeHistory) {
		return o.resultLocked(ev, active.Instruction)
	}

	completed := o.session.completeActive()
	o.challengeHistory = nil
	logging.Session(o.session.ID).Infof("challenge completed: %s (%d/%d)",
		completed, o.session.CurrentChallengeIndex, len(o.session.Challenges))

	var result FrameResult
	if o.session.State == StateCompleted {
		verdict := o.computeVerdictLocked()
		result = o.resultLocked(ev, MsgCompleted)
		result.Verdict = verdict
	} else {
		next, _ := o.session.ActiveChallenge()
		result = o.resultLocked(ev, next.Instruction)
	}
	result.ChallengeCompleted = &completed
	return result
}

// computeVerdictLocked runs the motion-correlation check and builds
// the final verdict, exactly once per session. Caller holds mu.
func (o *Orchestrator) computeVerdictLocked() *Verdict {
	if o.verdictIssued {
		return nil
	}
	o.verdictIssued = true

	success := false
	score := 0.0
	if o.motion != nil {
		success, score = o.motion.VerifyCorrelation(o.headReadings)
	}

	verdict := &Verdict{
		SessionID:        o.session.ID,
		Success:          success,
		CorrelationScore: score,
		Metadata: map[string]string{
			"correlation_score": fmt.Sprintf("%.4f", score),
			"challenges":        fmt.Sprint(challengeTypeNames(o.session.Challenges)),
			"head_readings":     fmt.Sprintf("%d", len(o.headReadings)),
			"dropped_frames":    fmt.Sprintf("%d", o.droppedFrames.Load()),
		},
	}

	entry := logging.Session(o.session.ID).WithFields(logging.Fields{
		"success": success,
		"score":   score,
	})
	if success {
		entry.Info("liveness verified")
	} else {
		// Spoof-suspected is a reportable outcome, never a fault.
		entry.Warn("liveness rejected: motion correlation failed")
	}

	return verdict
}

// recordHeadReading appends a head-angle sample from face evidence,
// bounded to the session window.
func (o *Orchestrator) recordHeadReading(ev detect.Evidence) {
	o.headReadings = append(o.headReadings, motion.Reading{
		Yaw:       ev.Face.HeadAngles.Yaw,
		Pitch:     ev.Face.HeadAngles.Pitch,
		Roll:      ev.Face.HeadAngles.Roll,
		Timestamp: ev.Timestamp,
	})

	cutoff := ev.Timestamp.Add(-o.cfg.MaxSessionDuration)
	firstValid := 0
	for firstValid < len(o.headReadings) && o.headReadings[firstValid].Timestamp.Before(cutoff) {
		firstValid++
	}
	if firstValid > 0 {
		o.headReadings = append(o.headReadings[:0], o.headReadings[firstValid:]...)
	}
}

// resultLocked builds a frame result from current session state.
func (o *Orchestrator) resultLocked(ev detect.Evidence, status string) FrameResult {
	return FrameResult{
		SessionID:    o.session.ID,
		State:        o.session.State,
		Status:       status,
		FaceDetected: ev.FaceDetected(),
		Progress:     o.session.Progress(),
	}
}

// snapshotLocked recomputes the observable snapshot.
func (o *Orchestrator) snapshotLocked(ev detect.Evidence, result FrameResult) {
	o.lastSnapshot = Snapshot{
		SessionID:     o.session.ID,
		State:         o.session.State,
		Progress:      o.session.Progress(),
		Status:        result.Status,
		FaceDetected:  result.FaceDetected,
		LightingValue: ev.Lighting.Value,
	}
}

// fireCallbacks invokes the optional outbound hooks for a result.
// Callbacks run outside the orchestrator lock.
func (o *Orchestrator) fireCallbacks(result FrameResult) {
	if result.ChallengeCompleted != nil && o.cfg.Callbacks.OnChallengeCompleted != nil {
		o.cfg.Callbacks.OnChallengeCompleted(string(*result.ChallengeCompleted))
	}
	if result.Verdict != nil && o.cfg.Callbacks.OnLivenessCompleted != nil {
		o.cfg.Callbacks.OnLivenessCompleted(
			result.Verdict.SessionID, result.Verdict.Success, result.Verdict.Metadata)
	}
}

func challengeTypeNames(challenges []Challenge) []string {
	names := make([]string, len(challenges))
	for i, c := range challenges {
		names[i] = string(c.Type)
	}
	return names
}
