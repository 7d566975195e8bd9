// Package camera provides camera access contracts and frame-level
// lighting estimation. Frame acquisition itself is delegated to a
// device-specific implementation of the Camera interface.
package camera

import (
	"errors"
	"time"
)

// Frame represents a single camera frame.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    string // "RGB", "GRAY", "JPEG"
	Timestamp time.Time
}

// DeviceInfo contains information about a camera device.
type DeviceInfo struct {
	Path   string
	Name   string
	Driver string
}

// Camera defines the interface for camera operations.
type Camera interface {
	Open(device string) error
	Close() error
	StartStreaming() error
	StopStreaming() error
	ReadFrame() (*Frame, error)
	SetResolution(width, height int) error
	GetDeviceInfo() DeviceInfo
}

// ErrCameraNotFound is returned when the camera device is not found.
var ErrCameraNotFound = errors.New("camera device not found")

// ErrCameraNotOpen is returned when trying to capture from a closed camera.
var ErrCameraNotOpen = errors.New("camera not open")

// ErrNoFrame is returned when no frame could be captured.
var ErrNoFrame = errors.New("failed to capture frame")
