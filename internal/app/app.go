// Package app wires the camera, the hand detector and the gesture classifier into the
// steering control loop.
package app

import (
	"context"
	"fmt"

	"github.com/ayusman/handwheel/internal/capture"
	"github.com/ayusman/handwheel/internal/detector"
	"github.com/ayusman/handwheel/internal/gesture"
	"github.com/ayusman/handwheel/internal/recognizer"
	"go.uber.org/zap"
)

// Config holds configuration options for the application.
type Config struct {
	Camera   capture.Options
	Detector detector.Config
	Loop     LoopConfig

	// GestureScript overrides the classifier helper location.
	GestureScript string
	// GestureModel is passed to the classifier helper.
	GestureModel string
}

// App owns the capture devices and the control loop.
type App struct {
	log        *zap.Logger
	config     Config
	camera     capture.Camera
	detector   detector.Detector
	classifier recognizer.Classifier
	source     *CameraSource
	loop       *Loop
}

// New creates an App publishing to publisher. Devices are opened by Run.
func New(config Config, publisher Publisher, log *zap.Logger) *App {
	a := &App{
		log:    log,
		config: config,
		camera: capture.NewCamera(config.Camera),
	}

	if mp, err := detector.NewMediaPipeDetector(config.Detector, log.Named("detector")); err == nil {
		a.detector = mp
		log.Info("Using MediaPipe hand detection")
	} else {
		log.Warn("MediaPipe not available, using mock detector", zap.Error(err))
		a.detector = detector.NewMockDetector()
	}

	a.source = NewCameraSource(a.camera, a.detector)
	a.loop = NewLoop(config.Loop, a.source, publisher, log.Named("loop"))
	return a
}

// SetCamera replaces the capture device. Call before Run.
func (a *App) SetCamera(c capture.Camera) {
	a.camera = c
	a.source.camera = c
}

// SetDetector replaces the hand detector. Call before Run.
func (a *App) SetDetector(d detector.Detector) {
	if a.detector != nil && a.detector != d {
		_ = a.detector.Close()
	}
	a.detector = d
	a.source.detector = d
}

// SetClassifier installs a classifier for classifier mode. Call before Run. Results must
// be reported to Loop().HandleResult.
func (a *App) SetClassifier(c recognizer.Classifier) {
	a.classifier = c
	a.loop.SetClassifier(c)
}

// Loop returns the control loop.
func (a *App) Loop() *Loop {
	return a.loop
}

// SetEnabled enables or disables detection.
func (a *App) SetEnabled(enabled bool) {
	a.loop.SetEnabled(enabled)
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	return a.loop.Enabled()
}

// Status returns the loop's latest snapshot.
func (a *App) Status() Status {
	return a.loop.Status()
}

// Run opens the camera, starts the classifier when needed and runs the control loop
// until ctx is done. All devices are released before it returns.
func (a *App) Run(ctx context.Context) error {
	if a.loop.Mode() == gesture.ModeClassifier && a.classifier == nil {
		c, err := recognizer.NewServiceClassifier(a.config.GestureScript, a.config.GestureModel,
			a.loop.HandleResult, a.log.Named("classifier"))
		if err != nil {
			return fmt.Errorf("gesture classifier: %w", err)
		}
		a.SetClassifier(c)
	}

	if err := a.camera.Open(); err != nil {
		a.release()
		return fmt.Errorf("open camera %d: %w", a.config.Camera.DeviceID, err)
	}
	w, h := a.camera.Size()
	a.log.Info("Camera opened", zap.Int("device", a.config.Camera.DeviceID), zap.Int("width", w), zap.Int("height", h))

	defer a.release()
	return a.loop.Run(ctx)
}

func (a *App) release() {
	if err := a.camera.Close(); err != nil {
		a.log.Warn("Error closing camera", zap.Error(err))
	}
	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil {
			a.log.Warn("Error closing classifier", zap.Error(err))
		}
	}
	if err := a.detector.Close(); err != nil {
		a.log.Warn("Error closing detector", zap.Error(err))
	}
}
