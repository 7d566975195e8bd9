// Package liveness implements the liveness session state machine and
// its spoof-resistance decision logic: challenge lifecycle, face
// centering, per-frame transitions, and the motion-correlation verdict.
package liveness

import (
	"math/rand"
	"time"

	"github.com/veridianhq/facelive/pkg/detect"
)

// ChallengeType identifies a physical action the subject must perform.
type ChallengeType string

const (
	ChallengeBlink     ChallengeType = "blink"
	ChallengeTurnLeft  ChallengeType = "turn_left"
	ChallengeTurnRight ChallengeType = "turn_right"
	ChallengeSmile     ChallengeType = "smile"
	ChallengeOpenMouth ChallengeType = "open_mouth"
)

// Challenge is one physical action in a session's sequence.
// Completed is set exactly once and never reverts within a session.
type Challenge struct {
	Type        ChallengeType
	Instruction string
	Completed   bool
}

// instructions are the user-facing prompts per challenge type.
var instructions = map[ChallengeType]string{
	ChallengeBlink:     "Blink your eyes",
	ChallengeTurnLeft:  "Turn your head to the left",
	ChallengeTurnRight: "Turn your head to the right",
	ChallengeSmile:     "Smile",
	ChallengeOpenMouth: "Open your mouth",
}

// Instruction returns the prompt for a challenge type.
func Instruction(t ChallengeType) string {
	if msg, ok := instructions[t]; ok {
		return msg
	}
	return string(t)
}

// Thresholds holds per-challenge completion detection settings.
type Thresholds struct {
	// BlinkEAR is the eye-aspect-ratio below which eyes count as closed.
	BlinkEAR float64
	// EyeOpenEAR is the ratio at or above which eyes count as open.
	EyeOpenEAR float64
	// TurnYaw is the yaw magnitude in degrees confirming a head turn.
	TurnYaw float64
	// SmileRatio is the mouth-width-to-face-width ratio confirming a smile.
	SmileRatio float64
	// MouthOpenRatio is the lip-gap-to-mouth-width ratio confirming an
	// open mouth.
	MouthOpenRatio float64
	// MinConfirmSamples is the consecutive-frame count required before a
	// sustained pose counts, rejecting single-frame noise.
	MinConfirmSamples int
	// MinConfirmDuration is the minimum wall-time span of those samples.
	MinConfirmDuration time.Duration
}

// DefaultThresholds returns the standard completion thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlinkEAR:           0.2,
		EyeOpenEAR:         0.25,
		TurnYaw:            20.0,
		SmileRatio:         0.45,
		MouthOpenRatio:     0.5,
		MinConfirmSamples:  3,
		MinConfirmDuration: 100 * time.Millisecond,
	}
}

// minBlinkFrames is the closed-eye run length confirming a blink.
// Blinks are fast; requiring the full sustained-pose sample count
// would reject most genuine blinks at typical frame rates.
const minBlinkFrames = 2

// Catalog validates challenge completion against accumulated evidence.
type Catalog struct {
	thresholds Thresholds
}

// NewCatalog creates a catalog with the given thresholds.
func NewCatalog(thresholds Thresholds) *Catalog {
	return &Catalog{thresholds: thresholds}
}

// NewSequence builds a randomized challenge sequence: count distinct
// challenges drawn from the given set, in random order.
func (c *Catalog) NewSequence(set []ChallengeType, count int, rng *rand.Rand) []Challenge {
	if count > len(set) {
		count = len(set)
	}

	shuffled := make([]ChallengeType, len(set))
	copy(shuffled, set)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	challenges := make([]Challenge, count)
	for i := 0; i < count; i++ {
		challenges[i] = Challenge{
			Type:        shuffled[i],
			Instruction: Instruction(shuffled[i]),
		}
	}
	return challenges
}

// IsCompleted reports whether the evidence history accumulated since
// the challenge became active satisfies its completion criteria.
// Only evidence frames with a detected face should be passed in.
func (c *Catalog) IsCompleted(t ChallengeType, history []detect.Evidence) bool {
	switch t {
	case ChallengeBlink:
		return c.blinkDetected(history)
	case ChallengeTurnLeft:
		return c.sustained(history, func(ev detect.Evidence) bool {
			return ev.Face.HeadAngles.Yaw <= -c.thresholds.TurnYaw
		})
	case ChallengeTurnRight:
		return c.sustained(history, func(ev detect.Evidence) bool {
			return ev.Face.HeadAngles.Yaw >= c.thresholds.TurnYaw
		})
	case ChallengeSmile:
		return c.sustained(history, func(ev detect.Evidence) bool {
			return ev.SmileRatio >= c.thresholds.SmileRatio
		})
	case ChallengeOpenMouth:
		return c.sustained(history, func(ev detect.Evidence) bool {
			return ev.MouthOpenRatio >= c.thresholds.MouthOpenRatio
		})
	}
	return false
}

// blinkDetected looks for an open -> closed -> open eye-aspect-ratio
// sequence, with the closed run long enough to reject sensor noise.
func (c *Catalog) blinkDetected(history []detect.Evidence) bool {
	seenOpen := false
	closedRun := 0
	blinked := false

	for _, ev := range history {
		ear := ev.EyeAspectRatio
		switch {
		case ear < c.thresholds.BlinkEAR:
			if seenOpen {
				closedRun++
				if closedRun >= minBlinkFrames {
					blinked = true
				}
			}
		case ear >= c.thresholds.EyeOpenEAR:
			if blinked {
				// Eyes reopened after a confirmed closure.
				return true
			}
			seenOpen = true
			closedRun = 0
		default:
			// Between thresholds: ambiguous, keep current run state.
		}
	}
	return false
}

// sustained reports whether some consecutive run of evidence frames
// satisfies the predicate for at least MinConfirmSamples frames
// spanning at least MinConfirmDuration.
func (c *Catalog) sustained(history []detect.Evidence, match func(detect.Evidence) bool) bool {
	runStart := -1
	for i, ev := range history {
		if !match(ev) {
			runStart = -1
			continue
		}
		if runStart < 0 {
			runStart = i
		}
		samples := i - runStart + 1
		span := ev.Timestamp.Sub(history[runStart].Timestamp)
		if samples >= c.thresholds.MinConfirmSamples && span >= c.thresholds.MinConfirmDuration {
			return true
		}
	}
	return false
}
