package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Camera.Device != "/dev/video0" {
		t.Errorf("expected default camera device /dev/video0, got %s", config.Camera.Device)
	}
	if config.Camera.Width != 640 || config.Camera.Height != 480 {
		t.Errorf("unexpected default resolution: %dx%d", config.Camera.Width, config.Camera.Height)
	}
	if config.Session.MaxDuration != 60 {
		t.Errorf("expected default session max duration 60s, got %d", config.Session.MaxDuration)
	}
	if config.Session.ChallengeCount != 3 {
		t.Errorf("expected default challenge count 3, got %d", config.Session.ChallengeCount)
	}
	if len(config.Session.ChallengeSet) != 5 {
		t.Errorf("expected 5 known challenges in default set, got %d", len(config.Session.ChallengeSet))
	}
	if config.Motion.CorrelationThreshold != 0.6 {
		t.Errorf("expected default correlation threshold 0.6, got %f", config.Motion.CorrelationThreshold)
	}
	if !config.Reports.EncryptionEnabled {
		t.Error("report encryption should be enabled by default")
	}

	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	content := `
camera:
  device: /dev/video2
  fps: 15
session:
  max_duration: 30
  challenge_count: 2
  challenge_set: [blink, smile]
challenge:
  turn_yaw_threshold: 25.0
logging:
  level: debug
`
	path := filepath.Join(t.TempDir(), "facelive.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if config.Camera.Device != "/dev/video2" {
		t.Errorf("expected overridden device, got %s", config.Camera.Device)
	}
	if config.Camera.FPS != 15 {
		t.Errorf("expected overridden FPS 15, got %d", config.Camera.FPS)
	}
	if config.Session.MaxDuration != 30 {
		t.Errorf("expected overridden max duration 30, got %d", config.Session.MaxDuration)
	}
	if len(config.Session.ChallengeSet) != 2 {
		t.Errorf("expected 2 challenges, got %v", config.Session.ChallengeSet)
	}
	if config.Challenge.TurnYawThreshold != 25.0 {
		t.Errorf("expected overridden yaw threshold, got %f", config.Challenge.TurnYawThreshold)
	}

	// Values absent from the file keep their defaults.
	if config.Camera.Width != 640 {
		t.Errorf("expected default width to survive partial config, got %d", config.Camera.Width)
	}
	if config.Motion.MinSamplePairs != 8 {
		t.Errorf("expected default min sample pairs, got %d", config.Motion.MinSamplePairs)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("expected an error for a missing file")
	}
	if config == nil {
		t.Fatal("Load should still return defaults on error")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		errPart string
	}{
		{
			name:    "zero camera width",
			mutate:  func(c *Config) { c.Camera.Width = 0 },
			errPart: "camera resolution",
		},
		{
			name:    "negative fps",
			mutate:  func(c *Config) { c.Camera.FPS = -1 },
			errPart: "camera FPS",
		},
		{
			name:    "max lighting below min",
			mutate:  func(c *Config) { c.Camera.MaxLightingValue = 0.1 },
			errPart: "max_lighting_value",
		},
		{
			name:    "zero session duration",
			mutate:  func(c *Config) { c.Session.MaxDuration = 0 },
			errPart: "max_duration",
		},
		{
			name:    "unknown challenge type",
			mutate:  func(c *Config) { c.Session.ChallengeSet = []string{"wink"} },
			errPart: "unknown challenge type",
		},
		{
			name: "challenge count above set size",
			mutate: func(c *Config) {
				c.Session.ChallengeSet = []string{"blink"}
				c.Session.ChallengeCount = 2
			},
			errPart: "exceeds challenge_set size",
		},
		{
			name:    "gate ratios inverted",
			mutate:  func(c *Config) { c.Centering.GateMinRatio = 0.9 },
			errPart: "gate_min_ratio",
		},
		{
			name:    "blink threshold above open threshold",
			mutate:  func(c *Config) { c.Challenge.BlinkEARThreshold = 0.3 },
			errPart: "blink_ear_threshold",
		},
		{
			name:    "correlation threshold above one",
			mutate:  func(c *Config) { c.Motion.CorrelationThreshold = 1.5 },
			errPart: "correlation_threshold",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			errPart: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.errPart)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	expanded := ExpandPath("~/models")
	if expanded != filepath.Join(homeDir, "models") {
		t.Errorf("expected home expansion, got %s", expanded)
	}

	t.Setenv("FACELIVE_TEST_DIR", "/opt/facelive")
	expanded = ExpandPath("$FACELIVE_TEST_DIR/data")
	if expanded != "/opt/facelive/data" {
		t.Errorf("expected env expansion, got %s", expanded)
	}
}

func TestConfig_EnsureDirectories(t *testing.T) {
	base := t.TempDir()
	config := DefaultConfig()
	config.Reports.DataDir = filepath.Join(base, "data")
	config.Detection.ModelPath = filepath.Join(base, "models")
	config.Logging.File = filepath.Join(base, "logs", "facelive.log")

	if err := config.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() failed: %v", err)
	}

	for _, dir := range []string{
		config.Reports.DataDir,
		filepath.Join(config.Reports.DataDir, "reports"),
		config.Detection.ModelPath,
		filepath.Join(base, "logs"),
	} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("expected directory %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}
