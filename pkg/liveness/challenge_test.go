package liveness

import (
	"math/rand"
	"testing"
	"time"

	"github.com/veridianhq/facelive/pkg/detect"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// evidenceSeq builds a face-evidence history with 50ms frame spacing,
// applying fn to customize each frame.
func evidenceSeq(count int, fn func(i int, ev *detect.Evidence)) []detect.Evidence {
	history := make([]detect.Evidence, count)
	for i := range history {
		history[i] = detect.Evidence{
			Face:           &detect.Face{},
			EyeAspectRatio: 0.3,
			Timestamp:      testStart.Add(time.Duration(i) * 50 * time.Millisecond),
		}
		if fn != nil {
			fn(i, &history[i])
		}
	}
	return history
}

func TestCatalog_BlinkDetection(t *testing.T) {
	catalog := NewCatalog(DefaultThresholds())

	tests := []struct {
		name     string
		history  []detect.Evidence
		expected bool
	}{
		{
			name: "open closed open sequence completes",
			history: evidenceSeq(8, func(i int, ev *detect.Evidence) {
				if i == 3 || i == 4 {
					ev.EyeAspectRatio = 0.15
				}
			}),
			expected: true,
		},
		{
			name:     "constant open eyes never completes",
			history:  evidenceSeq(10, nil),
			expected: false,
		},
		{
			name: "single closed frame is noise",
			history: evidenceSeq(8, func(i int, ev *detect.Evidence) {
				if i == 4 {
					ev.EyeAspectRatio = 0.15
				}
			}),
			expected: false,
		},
		{
			name: "closure without reopening is not a blink",
			history: evidenceSeq(8, func(i int, ev *detect.Evidence) {
				if i >= 4 {
					ev.EyeAspectRatio = 0.15
				}
			}),
			expected: false,
		},
		{
			name: "closed from the start never counted as open",
			history: evidenceSeq(8, func(i int, ev *detect.Evidence) {
				if i < 4 {
					ev.EyeAspectRatio = 0.15
				}
			}),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.IsCompleted(ChallengeBlink, tt.history)
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestCatalog_HeadTurnDetection(t *testing.T) {
	catalog := NewCatalog(DefaultThresholds())

	tests := []struct {
		name      string
		challenge ChallengeType
		yaw       func(i int) float64
		expected  bool
	}{
		{
			name:      "sustained left turn completes turn_left",
			challenge: ChallengeTurnLeft,
			yaw:       func(i int) float64 { return -25 },
			expected:  true,
		},
		{
			name:      "sustained left turn does not complete turn_right",
			challenge: ChallengeTurnRight,
			yaw:       func(i int) float64 { return -25 },
			expected:  false,
		},
		{
			name:      "sustained right turn completes turn_right",
			challenge: ChallengeTurnRight,
			yaw:       func(i int) float64 { return 25 },
			expected:  true,
		},
		{
			name:      "below threshold never completes",
			challenge: ChallengeTurnLeft,
			yaw:       func(i int) float64 { return -15 },
			expected:  false,
		},
		{
			name:      "interrupted run never accumulates",
			challenge: ChallengeTurnLeft,
			yaw: func(i int) float64 {
				if i%2 == 0 {
					return -25
				}
				return 0
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := evidenceSeq(6, func(i int, ev *detect.Evidence) {
				ev.Face.HeadAngles.Yaw = tt.yaw(i)
			})
			got := catalog.IsCompleted(tt.challenge, history)
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestCatalog_MouthChallenges(t *testing.T) {
	catalog := NewCatalog(DefaultThresholds())

	tests := []struct {
		name      string
		challenge ChallengeType
		fn        func(i int, ev *detect.Evidence)
		expected  bool
	}{
		{
			name:      "sustained smile completes",
			challenge: ChallengeSmile,
			fn:        func(i int, ev *detect.Evidence) { ev.SmileRatio = 0.5 },
			expected:  true,
		},
		{
			name:      "neutral mouth does not smile",
			challenge: ChallengeSmile,
			fn:        func(i int, ev *detect.Evidence) { ev.SmileRatio = 0.35 },
			expected:  false,
		},
		{
			name:      "sustained open mouth completes",
			challenge: ChallengeOpenMouth,
			fn:        func(i int, ev *detect.Evidence) { ev.MouthOpenRatio = 0.6 },
			expected:  true,
		},
		{
			name:      "closed mouth does not complete",
			challenge: ChallengeOpenMouth,
			fn:        func(i int, ev *detect.Evidence) { ev.MouthOpenRatio = 0.1 },
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.IsCompleted(tt.challenge, evidenceSeq(6, tt.fn))
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// A sustained pose shorter than the minimum confirmation duration must
// not complete, even with enough samples.
func TestCatalog_MinConfirmDuration(t *testing.T) {
	thresholds := DefaultThresholds()
	thresholds.MinConfirmDuration = time.Second
	catalog := NewCatalog(thresholds)

	history := evidenceSeq(6, func(i int, ev *detect.Evidence) {
		ev.Face.HeadAngles.Yaw = -25
	})

	// 6 frames at 50ms spacing span 250ms, well under one second.
	if catalog.IsCompleted(ChallengeTurnLeft, history) {
		t.Error("pose shorter than min confirmation duration should not complete")
	}
}

func TestCatalog_NewSequence(t *testing.T) {
	catalog := NewCatalog(DefaultThresholds())
	set := []ChallengeType{
		ChallengeBlink, ChallengeTurnLeft, ChallengeTurnRight,
		ChallengeSmile, ChallengeOpenMouth,
	}

	t.Run("selects count distinct challenges", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		challenges := catalog.NewSequence(set, 3, rng)

		if len(challenges) != 3 {
			t.Fatalf("expected 3 challenges, got %d", len(challenges))
		}
		seen := map[ChallengeType]bool{}
		for _, c := range challenges {
			if seen[c.Type] {
				t.Errorf("duplicate challenge type: %s", c.Type)
			}
			seen[c.Type] = true
			if c.Completed {
				t.Error("new challenge should not be completed")
			}
			if c.Instruction == "" {
				t.Errorf("missing instruction for %s", c.Type)
			}
		}
	})

	t.Run("count capped at set size", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		challenges := catalog.NewSequence(set[:2], 5, rng)
		if len(challenges) != 2 {
			t.Errorf("expected 2 challenges, got %d", len(challenges))
		}
	})

	t.Run("ordering varies across seeds", func(t *testing.T) {
		orders := map[string]bool{}
		for seed := int64(0); seed < 20; seed++ {
			rng := rand.New(rand.NewSource(seed))
			var order string
			for _, c := range catalog.NewSequence(set, 3, rng) {
				order += string(c.Type) + ","
			}
			orders[order] = true
		}
		if len(orders) < 2 {
			t.Error("expected differing challenge orderings across seeds")
		}
	})
}

func BenchmarkCatalog_BlinkDetection(b *testing.B) {
	catalog := NewCatalog(DefaultThresholds())
	history := evidenceSeq(30, func(i int, ev *detect.Evidence) {
		if i == 15 || i == 16 {
			ev.EyeAspectRatio = 0.15
		}
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		catalog.IsCompleted(ChallengeBlink, history)
	}
}
