// Package config provides configuration management for FaceLive.
// It loads configuration from YAML files with sensible defaults,
// then applies FACELIVE_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "facelive"

// Config holds all FaceLive configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Detection DetectionConfig `yaml:"detection"`
	Session   SessionConfig   `yaml:"session"`
	Centering CenteringConfig `yaml:"centering"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Motion    MotionConfig    `yaml:"motion"`
	Reports   ReportsConfig   `yaml:"reports"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CameraConfig holds camera and lighting estimation settings.
type CameraConfig struct {
	Device            string  `yaml:"device"`
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	FPS               int     `yaml:"fps"`
	MinLightingValue  float64 `yaml:"min_lighting_value"`
	MaxLightingValue  float64 `yaml:"max_lighting_value"`
	GlareHighlightCut float64 `yaml:"glare_highlight_cut"`
}

// DetectionConfig holds face detection settings.
type DetectionConfig struct {
	ModelPath string `yaml:"model_path"`
}

// SessionConfig holds liveness session settings.
type SessionConfig struct {
	MaxDuration    int      `yaml:"max_duration"` // seconds
	ChallengeCount int      `yaml:"challenge_count"`
	ChallengeSet   []string `yaml:"challenge_set"`
}

// CenteringConfig holds face-centering thresholds.
// Guidance values drive the advisory text; the gate values are the
// stricter predicate that admits the session into challenges.
type CenteringConfig struct {
	TooCloseRatio       float64 `yaml:"too_close_ratio"`
	TooFarRatio         float64 `yaml:"too_far_ratio"`
	HorizontalTolerance float64 `yaml:"horizontal_tolerance"` // fraction of frame width
	VerticalTolerance   float64 `yaml:"vertical_tolerance"`   // fraction of frame height
	GateMinRatio        float64 `yaml:"gate_min_ratio"`
	GateMaxRatio        float64 `yaml:"gate_max_ratio"`
	GateOffsetTolerance float64 `yaml:"gate_offset_tolerance"`
}

// ChallengeConfig holds challenge completion thresholds.
type ChallengeConfig struct {
	BlinkEARThreshold  float64 `yaml:"blink_ear_threshold"`
	EyeOpenEAR         float64 `yaml:"eye_open_ear"`
	TurnYawThreshold   float64 `yaml:"turn_yaw_threshold"` // degrees
	SmileRatio         float64 `yaml:"smile_ratio"`
	MouthOpenRatio     float64 `yaml:"mouth_open_ratio"`
	MinConfirmSamples  int     `yaml:"min_confirm_samples"`
	MinConfirmDuration int     `yaml:"min_confirm_duration"` // milliseconds
}

// MotionConfig holds motion-correlation settings.
type MotionConfig struct {
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	MinSamplePairs       int     `yaml:"min_sample_pairs"`
	MergeToleranceMs     int     `yaml:"merge_tolerance_ms"`
	WindowSeconds        int     `yaml:"window_seconds"`
}

// ReportsConfig holds verdict report storage settings.
type ReportsConfig struct {
	DataDir           string `yaml:"data_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Camera: CameraConfig{
			Device:            "/dev/video0",
			Width:             640,
			Height:            480,
			FPS:               30,
			MinLightingValue:  0.25,
			MaxLightingValue:  0.95,
			GlareHighlightCut: 0.08,
		},
		Detection: DetectionConfig{
			ModelPath: filepath.Join(homeDir, ".local/share/facelive/models"),
		},
		Session: SessionConfig{
			MaxDuration:    60,
			ChallengeCount: 3,
			ChallengeSet:   []string{"blink", "turn_left", "turn_right", "smile", "open_mouth"},
		},
		Centering: CenteringConfig{
			TooCloseRatio:       0.9,
			TooFarRatio:         0.5,
			HorizontalTolerance: 0.10,
			VerticalTolerance:   0.10,
			GateMinRatio:        0.55,
			GateMaxRatio:        0.85,
			GateOffsetTolerance: 0.08,
		},
		Challenge: ChallengeConfig{
			BlinkEARThreshold:  0.2,
			EyeOpenEAR:         0.25,
			TurnYawThreshold:   20.0,
			SmileRatio:         0.45,
			MouthOpenRatio:     0.5,
			MinConfirmSamples:  3,
			MinConfirmDuration: 100,
		},
		Motion: MotionConfig{
			CorrelationThreshold: 0.6,
			MinSamplePairs:       8,
			MergeToleranceMs:     150,
			WindowSeconds:        60,
		},
		Reports: ReportsConfig{
			DataDir:           filepath.Join(homeDir, ".local/share/facelive"),
			EncryptionEnabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, ".local/share/facelive/facelive.log"),
		},
	}
}

// Load loads configuration from the specified file and applies
// environment overrides.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("/etc/facelive/facelive.yaml"); err == nil {
		return Load("/etc/facelive/facelive.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/facelive/facelive.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	config := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return config, err
	}
	return config, nil
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// knownChallenges mirrors the challenge types the catalog understands.
var knownChallenges = map[string]bool{
	"blink":      true,
	"turn_left":  true,
	"turn_right": true,
	"smile":      true,
	"open_mouth": true,
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera FPS: %d", c.Camera.FPS)
	}
	if c.Camera.MinLightingValue < 0 || c.Camera.MinLightingValue > 1 {
		return fmt.Errorf("min_lighting_value must be between 0 and 1, got %f", c.Camera.MinLightingValue)
	}
	if c.Camera.MaxLightingValue <= c.Camera.MinLightingValue || c.Camera.MaxLightingValue > 1 {
		return fmt.Errorf("max_lighting_value must be in (%f, 1], got %f", c.Camera.MinLightingValue, c.Camera.MaxLightingValue)
	}

	if c.Session.MaxDuration <= 0 {
		return fmt.Errorf("session max_duration must be positive, got %d", c.Session.MaxDuration)
	}
	if c.Session.ChallengeCount <= 0 {
		return fmt.Errorf("challenge_count must be positive, got %d", c.Session.ChallengeCount)
	}
	if len(c.Session.ChallengeSet) == 0 {
		return fmt.Errorf("challenge_set must not be empty")
	}
	for _, name := range c.Session.ChallengeSet {
		if !knownChallenges[name] {
			return fmt.Errorf("unknown challenge type: %s", name)
		}
	}
	if c.Session.ChallengeCount > len(c.Session.ChallengeSet) {
		return fmt.Errorf("challenge_count %d exceeds challenge_set size %d",
			c.Session.ChallengeCount, len(c.Session.ChallengeSet))
	}

	if c.Centering.TooFarRatio >= c.Centering.TooCloseRatio {
		return fmt.Errorf("too_far_ratio must be below too_close_ratio")
	}
	if c.Centering.GateMinRatio >= c.Centering.GateMaxRatio {
		return fmt.Errorf("gate_min_ratio must be below gate_max_ratio")
	}

	if c.Challenge.BlinkEARThreshold <= 0 || c.Challenge.BlinkEARThreshold >= c.Challenge.EyeOpenEAR {
		return fmt.Errorf("blink_ear_threshold must be positive and below eye_open_ear")
	}
	if c.Challenge.TurnYawThreshold <= 0 {
		return fmt.Errorf("turn_yaw_threshold must be positive, got %f", c.Challenge.TurnYawThreshold)
	}
	if c.Challenge.MinConfirmSamples <= 0 {
		return fmt.Errorf("min_confirm_samples must be positive, got %d", c.Challenge.MinConfirmSamples)
	}

	if c.Motion.CorrelationThreshold <= 0 || c.Motion.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation_threshold must be in (0, 1], got %f", c.Motion.CorrelationThreshold)
	}
	if c.Motion.MinSamplePairs <= 0 {
		return fmt.Errorf("min_sample_pairs must be positive, got %d", c.Motion.MinSamplePairs)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Camera.Device = ExpandPath(c.Camera.Device)
	c.Detection.ModelPath = ExpandPath(c.Detection.ModelPath)
	c.Reports.DataDir = ExpandPath(c.Reports.DataDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for storage and logging.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Reports.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	reportsDir := filepath.Join(c.Reports.DataDir, "reports")
	if err := os.MkdirAll(reportsDir, 0700); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	if err := os.MkdirAll(c.Detection.ModelPath, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	logDir := filepath.Dir(c.Logging.File)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	return nil
}
