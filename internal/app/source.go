package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/handwheel/internal/capture"
	"github.com/ayusman/handwheel/internal/detector"
	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when the camera could not deliver a frame. The loop skips the
// cycle and tries again.
var ErrNoFrame = errors.New("no frame available")

// Frame is one detection result together with the image it was computed from.
type Frame struct {
	Observations []detector.Observation
	Width        int
	Height       int
	// Image is the captured frame, or nil when the source has none. The receiver of a
	// Frame owns it and must call Release.
	Image      *gocv.Mat
	CapturedAt time.Time
}

// Release frees the image, if any.
func (f *Frame) Release() {
	if f.Image != nil {
		f.Image.Close()
		f.Image = nil
	}
}

// Source delivers detected frames to the control loop.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// CameraSource reads frames from a camera and runs the detector on each.
type CameraSource struct {
	camera   capture.Camera
	detector detector.Detector
	now      func() time.Time
}

// NewCameraSource creates a CameraSource. The camera must be opened by the caller.
func NewCameraSource(camera capture.Camera, det detector.Detector) *CameraSource {
	return &CameraSource{camera: camera, detector: det, now: time.Now}
}

// Next captures and detects one frame.
func (s *CameraSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	mat, err := s.camera.ReadFrame()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	at := s.now()

	obs, err := s.detector.Detect(mat)
	if err != nil {
		mat.Close()
		return Frame{}, fmt.Errorf("detect: %w", err)
	}

	return Frame{
		Observations: obs,
		Width:        mat.Cols(),
		Height:       mat.Rows(),
		Image:        mat,
		CapturedAt:   at,
	}, nil
}
