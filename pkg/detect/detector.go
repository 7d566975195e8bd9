package detect

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/veridianhq/facelive/pkg/camera"
	"github.com/veridianhq/facelive/pkg/logging"
)

// ErrNoFaceDetected is returned when no face is found in the image.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrModelNotLoaded is returned when models are not loaded.
var ErrModelNotLoaded = errors.New("detection models not loaded")

// Detector defines the face-detector collaborator contract.
// Implementations return all detected faces ordered by confidence.
type Detector interface {
	Detect(frame *camera.Frame) ([]Face, error)
	Close() error
}

// DlibDetector implements face detection using dlib via go-face.
type DlibDetector struct {
	rec       *face.Recognizer
	modelPath string
	loaded    bool
	mu        sync.RWMutex
}

// NewDlibDetector creates a new DlibDetector instance.
func NewDlibDetector() *DlibDetector {
	return &DlibDetector{}
}

// LoadModels loads the dlib models from the specified path.
// The path should contain:
// - shape_predictor_5_face_landmarks.dat
// - dlib_face_recognition_resnet_model_v1.dat
// - mmod_human_face_detector.dat (optional, for CNN detection)
func (d *DlibDetector) LoadModels(modelPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return nil
	}

	logging.Infof("Loading face detection models from: %s", modelPath)

	rec, err := face.NewRecognizer(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	d.rec = rec
	d.modelPath = modelPath
	d.loaded = true

	logging.Info("Face detection models loaded successfully")
	return nil
}

// IsLoaded returns true if models are loaded.
func (d *DlibDetector) IsLoaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Close releases the detector resources.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	d.loaded = false
	return nil
}

// Detect finds all faces in a frame with bounding boxes and landmarks.
func (d *DlibDetector) Detect(frame *camera.Frame) ([]Face, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.loaded {
		return nil, ErrModelNotLoaded
	}

	faces, err := d.rec.Recognize(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	if len(faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	result := make([]Face, len(faces))
	for i, f := range faces {
		rect := f.Rectangle
		landmarks := make([]Point, len(f.Shapes))
		for j, p := range f.Shapes {
			landmarks[j] = Point{X: p.X, Y: p.Y}
		}
		result[i] = Face{
			BoundingBox: Rectangle{
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			},
			Landmarks:  landmarks,
			Confidence: 1.0, // go-face doesn't provide confidence, assume high
		}
	}

	logging.Debugf("Detected %d face(s) in frame", len(result))
	return result, nil
}
