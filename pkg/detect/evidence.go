// Package detect provides face detection and per-frame evidence
// derivation. It wraps dlib/go-face for detection and landmark
// extraction, and computes the geometric features the liveness
// state machine consumes.
package detect

import (
	"math"
	"time"

	"github.com/veridianhq/facelive/pkg/camera"
)

// Rectangle represents a bounding box.
type Rectangle struct {
	X, Y          int
	Width, Height int
}

// CenterX returns the horizontal centroid of the rectangle.
func (r Rectangle) CenterX() float64 {
	return float64(r.X) + float64(r.Width)/2
}

// CenterY returns the vertical centroid of the rectangle.
func (r Rectangle) CenterY() float64 {
	return float64(r.Y) + float64(r.Height)/2
}

// Point represents a 2D point.
type Point struct {
	X, Y int
}

// HeadAngles holds estimated head orientation in degrees.
type HeadAngles struct {
	Yaw   float64 // left negative, right positive
	Pitch float64 // up negative, down positive
	Roll  float64
}

// Face represents a detected face in a frame.
type Face struct {
	BoundingBox Rectangle
	Landmarks   []Point
	HeadAngles  HeadAngles
	Confidence  float64
}

// Evidence is one unit of per-frame detector output consumed by the
// liveness state machine. Face is nil when no face was detected;
// lighting is estimated regardless.
type Evidence struct {
	Face           *Face
	FrameWidth     int
	FrameHeight    int
	Lighting       camera.Lighting
	EyeAspectRatio float64
	MouthOpenRatio float64
	SmileRatio     float64
	Timestamp      time.Time
}

// FaceDetected reports whether the frame contained a usable face.
func (e Evidence) FaceDetected() bool {
	return e.Face != nil
}

// dlib 5-point landmark layout: 0,1 left eye corners; 2,3 right eye
// corners; 4 nose tip. The 68-point layout is used when available.
const (
	fivePointCount = 5

	// 68-point indices
	lm68LeftEyeStart   = 36
	lm68RightEyeStart  = 42
	lm68MouthLeft      = 48
	lm68MouthRight     = 54
	lm68MouthTopInner  = 62
	lm68MouthBotInner  = 66
	lm68NoseTip        = 30
	lm68JawLeft        = 0
	lm68JawRight       = 16
	lm68PointCount     = 68
)

// BuildEvidence derives liveness features from a detected face.
// faces may be empty; the first (highest-confidence) face is used.
func BuildEvidence(frame *camera.Frame, faces []Face, lighting camera.Lighting) Evidence {
	ev := Evidence{
		FrameWidth:  frame.Width,
		FrameHeight: frame.Height,
		Lighting:    lighting,
		Timestamp:   frame.Timestamp,
	}

	if len(faces) == 0 {
		return ev
	}

	face := faces[0]
	ev.Face = &face
	ev.EyeAspectRatio = eyeAspectRatio(face.Landmarks)
	ev.MouthOpenRatio = mouthOpenRatio(face.Landmarks)
	ev.SmileRatio = smileRatio(face.Landmarks, face.BoundingBox)

	if face.HeadAngles == (HeadAngles{}) {
		ev.Face.HeadAngles = estimateHeadAngles(face.Landmarks, face.BoundingBox)
	}

	return ev
}

// eyeAspectRatio computes the average EAR over both eyes.
// With the 68-point layout this is the standard
// (|p2-p6| + |p3-p5|) / (2 |p1-p4|) formulation. The 5-point layout
// carries no eyelid points, so a neutral open-eye value is returned
// and blink challenges rely on the 68-point predictor.
func eyeAspectRatio(landmarks []Point) float64 {
	const neutralEAR = 0.3

	if len(landmarks) < lm68PointCount {
		return neutralEAR
	}

	left := earFromEye(landmarks[lm68LeftEyeStart : lm68LeftEyeStart+6])
	right := earFromEye(landmarks[lm68RightEyeStart : lm68RightEyeStart+6])
	return (left + right) / 2
}

func earFromEye(eye []Point) float64 {
	horizontal := pointDistance(eye[0], eye[3])
	if horizontal == 0 {
		return 0
	}
	v1 := pointDistance(eye[1], eye[5])
	v2 := pointDistance(eye[2], eye[4])
	return (v1 + v2) / (2 * horizontal)
}

// mouthOpenRatio is inner-lip gap over mouth width.
func mouthOpenRatio(landmarks []Point) float64 {
	if len(landmarks) < lm68PointCount {
		return 0
	}
	width := pointDistance(landmarks[lm68MouthLeft], landmarks[lm68MouthRight])
	if width == 0 {
		return 0
	}
	gap := pointDistance(landmarks[lm68MouthTopInner], landmarks[lm68MouthBotInner])
	return gap / width
}

// smileRatio is mouth width over face-box width. Smiling widens the
// mouth relative to the face.
func smileRatio(landmarks []Point, box Rectangle) float64 {
	if len(landmarks) < lm68PointCount || box.Width == 0 {
		return 0
	}
	width := pointDistance(landmarks[lm68MouthLeft], landmarks[lm68MouthRight])
	return width / float64(box.Width)
}

// estimateHeadAngles approximates head orientation from landmark
// geometry when the detector does not supply pose directly.
// Yaw comes from the nose offset relative to the eye midpoint,
// normalized by interocular distance; roll from the eye slope;
// pitch from the nose vertical position inside the face box.
func estimateHeadAngles(landmarks []Point, box Rectangle) HeadAngles {
	var leftEye, rightEye, nose Point

	switch {
	case len(landmarks) >= lm68PointCount:
		leftEye = midpoint(landmarks[lm68LeftEyeStart : lm68LeftEyeStart+6])
		rightEye = midpoint(landmarks[lm68RightEyeStart : lm68RightEyeStart+6])
		nose = landmarks[lm68NoseTip]
	case len(landmarks) >= fivePointCount:
		leftEye = midpoint(landmarks[0:2])
		rightEye = midpoint(landmarks[2:4])
		nose = landmarks[4]
	default:
		return HeadAngles{}
	}

	interocular := pointDistance(leftEye, rightEye)
	if interocular == 0 {
		return HeadAngles{}
	}

	eyeMidX := (float64(leftEye.X) + float64(rightEye.X)) / 2

	// Horizontal nose displacement maps roughly linearly onto yaw for
	// small angles; 1.0 interocular offset ~ 45 degrees.
	yaw := (float64(nose.X) - eyeMidX) / interocular * 45.0

	roll := math.Atan2(float64(rightEye.Y-leftEye.Y), float64(rightEye.X-leftEye.X)) * 180 / math.Pi

	pitch := 0.0
	if box.Height > 0 {
		// Nose tip sits near 55% of box height for a level head.
		noseRel := (float64(nose.Y) - float64(box.Y)) / float64(box.Height)
		pitch = (noseRel - 0.55) * 90.0
	}

	return HeadAngles{Yaw: yaw, Pitch: pitch, Roll: roll}
}

func midpoint(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sx, sy int
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	return Point{X: sx / len(points), Y: sy / len(points)}
}

func pointDistance(a, b Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
