package liveness

import (
	"math"

	"github.com/veridianhq/facelive/pkg/detect"
)

// Guidance messages. The preview shown to the subject is mirrored, so
// horizontal directions are given in the subject's frame of reference:
// a face left of center is told to move right.
const (
	MsgMoveFarther = "Too close! Move farther away"
	MsgMoveCloser  = "Too far! Move closer"
	MsgMoveLeft    = "Move left"
	MsgMoveRight   = "Move right"
	MsgMoveUp      = "Move up"
	MsgMoveDown    = "Move down"
	MsgHoldStill   = "Perfect! Hold still"
)

// CenteringRules holds the geometry thresholds for the guidance
// heuristic and the stricter centering gate.
type CenteringRules struct {
	// TooCloseRatio and TooFarRatio bound the face-to-oval width ratio
	// for the advisory messages.
	TooCloseRatio float64
	TooFarRatio   float64
	// HorizontalTolerance / VerticalTolerance are offset limits for the
	// advisory messages, as fractions of frame width/height.
	HorizontalTolerance float64
	VerticalTolerance   float64
	// Gate* are the stricter bounds that admit the session into the
	// challenge phase. The gate is a separate predicate, not merely
	// "no adjustment message".
	GateMinRatio        float64
	GateMaxRatio        float64
	GateOffsetTolerance float64
}

// DefaultCenteringRules returns the standard centering thresholds.
func DefaultCenteringRules() CenteringRules {
	return CenteringRules{
		TooCloseRatio:       0.9,
		TooFarRatio:         0.5,
		HorizontalTolerance: 0.10,
		VerticalTolerance:   0.10,
		GateMinRatio:        0.55,
		GateMaxRatio:        0.85,
		GateOffsetTolerance: 0.08,
	}
}

// CenteringAdvisor evaluates face position against a guide oval.
// The target center sits 5% of frame height above true center, and the
// oval width is 75% of 55% of frame height.
type CenteringAdvisor struct {
	rules CenteringRules
}

// NewCenteringAdvisor creates an advisor with the given rules.
func NewCenteringAdvisor(rules CenteringRules) *CenteringAdvisor {
	return &CenteringAdvisor{rules: rules}
}

// geometry returns the size ratio and the face-center offsets from the
// target center for one frame.
func (a *CenteringAdvisor) geometry(face detect.Rectangle, frameW, frameH int) (ratio, dx, dy float64) {
	targetX := float64(frameW) / 2
	targetY := float64(frameH)/2 - 0.05*float64(frameH)

	ovalWidth := 0.75 * 0.55 * float64(frameH)
	if ovalWidth > 0 {
		ratio = float64(face.Width) / ovalWidth
	}

	dx = face.CenterX() - targetX
	dy = face.CenterY() - targetY
	return ratio, dx, dy
}

// Guide returns the advisory guidance message for the frame.
// First matching rule wins: size, then horizontal, then vertical.
func (a *CenteringAdvisor) Guide(face detect.Rectangle, frameW, frameH int) string {
	ratio, dx, dy := a.geometry(face, frameW, frameH)

	switch {
	case ratio > a.rules.TooCloseRatio:
		return MsgMoveFarther
	case ratio < a.rules.TooFarRatio:
		return MsgMoveCloser
	case math.Abs(dx) > a.rules.HorizontalTolerance*float64(frameW):
		// Mirrored preview: screen x grows rightward on the device, so
		// a face left of the target recenters by moving right.
		if dx < 0 {
			return MsgMoveRight
		}
		return MsgMoveLeft
	case math.Abs(dy) > a.rules.VerticalTolerance*float64(frameH):
		if dy < 0 {
			return MsgMoveDown
		}
		return MsgMoveUp
	default:
		return MsgHoldStill
	}
}

// Centered is the gating predicate for the centering -> challenges
// transition. It is stricter than the guidance heuristic on both size
// and position, and is computed from the same frame geometry.
func (a *CenteringAdvisor) Centered(face detect.Rectangle, frameW, frameH int) bool {
	ratio, dx, dy := a.geometry(face, frameW, frameH)

	if ratio < a.rules.GateMinRatio || ratio > a.rules.GateMaxRatio {
		return false
	}
	if math.Abs(dx) > a.rules.GateOffsetTolerance*float64(frameW) {
		return false
	}
	if math.Abs(dy) > a.rules.GateOffsetTolerance*float64(frameH) {
		return false
	}
	return true
}
