package detect

import (
	"math"
	"testing"
	"time"

	"github.com/veridianhq/facelive/pkg/camera"
)

// landmarks68 builds a synthetic 68-point landmark set for a level,
// frontal face inside testFaceBox. Eye openness, mouth geometry, and
// nose position are adjustable through the returned slice.
func landmarks68() []Point {
	lm := make([]Point, lm68PointCount)

	// Left eye (36-41): 30px wide, 8px open.
	lm[36] = Point{X: 100, Y: 100}
	lm[37] = Point{X: 110, Y: 96}
	lm[38] = Point{X: 120, Y: 96}
	lm[39] = Point{X: 130, Y: 100}
	lm[40] = Point{X: 120, Y: 104}
	lm[41] = Point{X: 110, Y: 104}

	// Right eye (42-47): mirrored 60px to the right.
	lm[42] = Point{X: 160, Y: 100}
	lm[43] = Point{X: 170, Y: 96}
	lm[44] = Point{X: 180, Y: 96}
	lm[45] = Point{X: 190, Y: 100}
	lm[46] = Point{X: 180, Y: 104}
	lm[47] = Point{X: 170, Y: 104}

	// Nose tip centered between the eyes, 55% down the face box.
	lm[lm68NoseTip] = Point{X: 145, Y: 132}

	// Mouth: 40px wide, nearly closed inner lips.
	lm[lm68MouthLeft] = Point{X: 125, Y: 150}
	lm[lm68MouthRight] = Point{X: 165, Y: 150}
	lm[lm68MouthTopInner] = Point{X: 145, Y: 148}
	lm[lm68MouthBotInner] = Point{X: 145, Y: 152}

	return lm
}

func testFaceBox() Rectangle {
	return Rectangle{X: 80, Y: 60, Width: 130, Height: 130}
}

func closeEyes(lm []Point) {
	for _, i := range []int{37, 38, 43, 44} {
		lm[i].Y = 99
	}
	for _, i := range []int{40, 41, 46, 47} {
		lm[i].Y = 101
	}
}

func TestEyeAspectRatio(t *testing.T) {
	open := landmarks68()
	openEAR := eyeAspectRatio(open)
	// Both eyes 8px open over 30px width: EAR = 8/30.
	if math.Abs(openEAR-8.0/30.0) > 1e-9 {
		t.Errorf("open EAR = %f, expected %f", openEAR, 8.0/30.0)
	}

	closed := landmarks68()
	closeEyes(closed)
	closedEAR := eyeAspectRatio(closed)
	if closedEAR >= 0.1 {
		t.Errorf("closed EAR = %f, expected below 0.1", closedEAR)
	}
	if closedEAR >= openEAR {
		t.Error("closed eyes must score below open eyes")
	}
}

func TestEyeAspectRatio_FivePointFallback(t *testing.T) {
	lm := []Point{{100, 100}, {130, 100}, {160, 100}, {190, 100}, {145, 130}}
	if ear := eyeAspectRatio(lm); ear != 0.3 {
		t.Errorf("expected neutral EAR 0.3 without eyelid points, got %f", ear)
	}
}

func TestMouthOpenRatio(t *testing.T) {
	closed := landmarks68()
	// 4px gap over 40px width.
	if got := mouthOpenRatio(closed); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("closed mouth ratio = %f, expected 0.1", got)
	}

	open := landmarks68()
	open[lm68MouthTopInner].Y = 138
	open[lm68MouthBotInner].Y = 162
	// 24px gap over 40px width.
	if got := mouthOpenRatio(open); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("open mouth ratio = %f, expected 0.6", got)
	}

	if got := mouthOpenRatio(nil); got != 0 {
		t.Errorf("expected 0 without landmarks, got %f", got)
	}
}

func TestSmileRatio(t *testing.T) {
	lm := landmarks68()
	box := testFaceBox()

	// 40px mouth over 130px face box.
	neutral := smileRatio(lm, box)
	if math.Abs(neutral-40.0/130.0) > 1e-9 {
		t.Errorf("neutral smile ratio = %f, expected %f", neutral, 40.0/130.0)
	}

	smiling := landmarks68()
	smiling[lm68MouthLeft].X = 110
	smiling[lm68MouthRight].X = 180
	if got := smileRatio(smiling, box); got <= neutral {
		t.Errorf("widened mouth ratio %f should exceed neutral %f", got, neutral)
	}

	if got := smileRatio(lm, Rectangle{}); got != 0 {
		t.Errorf("expected 0 for a zero-width box, got %f", got)
	}
}

func TestEstimateHeadAngles(t *testing.T) {
	box := testFaceBox()

	t.Run("frontal face", func(t *testing.T) {
		angles := estimateHeadAngles(landmarks68(), box)
		if math.Abs(angles.Yaw) > 1 {
			t.Errorf("expected near-zero yaw for a centered nose, got %f", angles.Yaw)
		}
		if math.Abs(angles.Roll) > 1 {
			t.Errorf("expected near-zero roll for level eyes, got %f", angles.Roll)
		}
		if math.Abs(angles.Pitch) > 2 {
			t.Errorf("expected near-zero pitch for a level head, got %f", angles.Pitch)
		}
	})

	t.Run("head turned right", func(t *testing.T) {
		lm := landmarks68()
		// Nose displaced half the interocular distance: ~22.5 degrees.
		lm[lm68NoseTip].X = 175
		angles := estimateHeadAngles(lm, box)
		if angles.Yaw < 20 {
			t.Errorf("expected yaw above 20 degrees, got %f", angles.Yaw)
		}
	})

	t.Run("head turned left", func(t *testing.T) {
		lm := landmarks68()
		lm[lm68NoseTip].X = 115
		angles := estimateHeadAngles(lm, box)
		if angles.Yaw > -20 {
			t.Errorf("expected yaw below -20 degrees, got %f", angles.Yaw)
		}
	})

	t.Run("tilted head rolls", func(t *testing.T) {
		lm := landmarks68()
		for i := 42; i < 48; i++ {
			lm[i].Y += 30
		}
		angles := estimateHeadAngles(lm, box)
		if angles.Roll < 15 {
			t.Errorf("expected positive roll for a dropped right eye, got %f", angles.Roll)
		}
	})

	t.Run("too few landmarks", func(t *testing.T) {
		if angles := estimateHeadAngles([]Point{{1, 1}}, box); angles != (HeadAngles{}) {
			t.Errorf("expected zero angles, got %+v", angles)
		}
	})
}

func TestBuildEvidence(t *testing.T) {
	frame := &camera.Frame{
		Width:     640,
		Height:    480,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	lighting := camera.Lighting{Value: 0.6, IsGood: true}

	t.Run("no faces", func(t *testing.T) {
		ev := BuildEvidence(frame, nil, lighting)
		if ev.FaceDetected() {
			t.Error("expected no face")
		}
		if ev.FrameWidth != 640 || ev.FrameHeight != 480 {
			t.Errorf("frame dimensions not carried: %dx%d", ev.FrameWidth, ev.FrameHeight)
		}
		if ev.Lighting != lighting {
			t.Errorf("lighting not carried: %+v", ev.Lighting)
		}
		if !ev.Timestamp.Equal(frame.Timestamp) {
			t.Error("timestamp not carried")
		}
	})

	t.Run("face with landmarks", func(t *testing.T) {
		face := Face{BoundingBox: testFaceBox(), Landmarks: landmarks68()}
		ev := BuildEvidence(frame, []Face{face}, lighting)

		if !ev.FaceDetected() {
			t.Fatal("expected a detected face")
		}
		if math.Abs(ev.EyeAspectRatio-8.0/30.0) > 1e-9 {
			t.Errorf("unexpected EAR %f", ev.EyeAspectRatio)
		}
		if math.Abs(ev.MouthOpenRatio-0.1) > 1e-9 {
			t.Errorf("unexpected mouth ratio %f", ev.MouthOpenRatio)
		}
		if ev.SmileRatio == 0 {
			t.Error("expected a computed smile ratio")
		}
		// Pose absent from the detector is estimated from geometry.
		if math.Abs(ev.Face.HeadAngles.Pitch) > 2 {
			t.Errorf("unexpected estimated pitch %f", ev.Face.HeadAngles.Pitch)
		}
	})

	t.Run("detector pose preserved", func(t *testing.T) {
		face := Face{
			BoundingBox: testFaceBox(),
			Landmarks:   landmarks68(),
			HeadAngles:  HeadAngles{Yaw: 12.5},
		}
		ev := BuildEvidence(frame, []Face{face}, lighting)
		if ev.Face.HeadAngles.Yaw != 12.5 {
			t.Errorf("detector-supplied pose overwritten: %+v", ev.Face.HeadAngles)
		}
	})
}
