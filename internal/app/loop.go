package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/handwheel/internal/detector"
	"github.com/ayusman/handwheel/internal/gesture"
	"github.com/ayusman/handwheel/internal/hub"
	"github.com/ayusman/handwheel/internal/recognizer"
	"github.com/ayusman/handwheel/internal/steering"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Loop defaults.
const (
	DefaultYield           = 10 * time.Millisecond
	DefaultGestureInterval = 3
)

// Publisher receives one message per completed cycle.
type Publisher interface {
	Publish(msg *hub.SteeringMessage)
}

// LoopConfig tunes the control loop.
type LoopConfig struct {
	HandTimeout  time.Duration
	MaxStep      float64
	RecenterStep float64
	// RequireFist steers only while the debounced fist is closed. An open hand lets the
	// wheel recenter as if no hand were tracked.
	RequireFist  bool
	Mode         gesture.Mode
	ReleaseDelay time.Duration
	// Interval is how many frames pass between classifier submissions.
	Interval int
	// Yield is the pause between cycles.
	Yield time.Duration
}

// DefaultLoopConfig returns the stock tuning.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		HandTimeout:  steering.DefaultHandTimeout,
		MaxStep:      steering.DefaultMaxStep,
		RecenterStep: steering.DefaultRecenterStep,
		Mode:         gesture.ModeFingers,
		ReleaseDelay: gesture.DefaultReleaseDelay,
		Interval:     DefaultGestureInterval,
		Yield:        DefaultYield,
	}
}

// Status is a snapshot of the loop's derived state, safe to read from any goroutine.
type Status struct {
	Tracking     bool          `json:"tracking"`
	TrackedIndex int           `json:"tracked_index"`
	Observed     float64       `json:"observed_angle"`
	Distance     int           `json:"distance"`
	Angle        float64       `json:"rotation_angle"`
	Gesture      gesture.State `json:"gesture"`
	Frames       uint64        `json:"frames"`
}

// Loop is the control loop: it turns frames from a Source into steering messages.
//
// Everything except the enabled flag, the classifier's raw flag and the status
// snapshot is owned by the goroutine calling Run or Step.
type Loop struct {
	log       *zap.Logger
	source    Source
	publisher Publisher

	selector  *steering.Selector
	filter    *steering.Filter
	debouncer *gesture.Debouncer

	requireFist bool

	mode       gesture.Mode
	classifier recognizer.Classifier
	interval   uint64
	frames     uint64
	rawFist    *atomic.Bool
	resultAt   *atomic.Int64

	yield   time.Duration
	enabled *atomic.Bool
	status  *atomic.Pointer[Status]
}

// NewLoop creates an enabled Loop. Zero fields in cfg take their defaults.
func NewLoop(cfg LoopConfig, source Source, publisher Publisher, log *zap.Logger) *Loop {
	if cfg.HandTimeout <= 0 {
		cfg.HandTimeout = steering.DefaultHandTimeout
	}
	if !cfg.Mode.Valid() {
		cfg.Mode = gesture.ModeFingers
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultGestureInterval
	}
	if cfg.Yield < 0 {
		cfg.Yield = 0
	}

	l := &Loop{
		log:         log,
		source:      source,
		publisher:   publisher,
		selector:    steering.NewSelector(cfg.HandTimeout),
		filter:      steering.NewFilter(cfg.MaxStep, cfg.RecenterStep),
		debouncer:   gesture.NewDebouncer(cfg.ReleaseDelay),
		requireFist: cfg.RequireFist,
		mode:        cfg.Mode,
		interval:    uint64(cfg.Interval),
		rawFist:     atomic.NewBool(false),
		resultAt:    atomic.NewInt64(0),
		yield:       cfg.Yield,
		enabled:     atomic.NewBool(true),
	}
	l.status = atomic.NewPointer(&Status{TrackedIndex: -1, Angle: steering.RestAngle})
	return l
}

// Mode returns the active gesture mode.
func (l *Loop) Mode() gesture.Mode {
	return l.mode
}

// SetClassifier sets the classifier used in classifier mode. Call before Run.
func (l *Loop) SetClassifier(c recognizer.Classifier) {
	l.classifier = c
}

// HandleResult is the classifier callback. Results older than one already applied are
// ignored, so late answers cannot override newer ones.
func (l *Loop) HandleResult(res recognizer.Result) {
	at := res.Timestamp.UnixMilli()
	for {
		prev := l.resultAt.Load()
		if at < prev {
			return
		}
		if l.resultAt.CompareAndSwap(prev, at) {
			break
		}
	}
	l.rawFist.Store(res.IsFist())
}

// SetEnabled pauses or resumes the loop. A paused loop neither reads frames nor publishes.
func (l *Loop) SetEnabled(enabled bool) {
	if l.enabled.Swap(enabled) != enabled {
		l.log.Info("Detection toggled", zap.Bool("enabled", enabled))
	}
}

// Enabled reports whether the loop is running cycles.
func (l *Loop) Enabled() bool {
	return l.enabled.Load()
}

// Status returns the latest snapshot.
func (l *Loop) Status() Status {
	return *l.status.Load()
}

// Run executes cycles until ctx is done. Recoverable errors are logged and the cycle
// skipped.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("Control loop started", zap.String("mode", string(l.mode)), zap.Duration("yield", l.yield))
	defer l.log.Info("Control loop stopped")

	timer := time.NewTimer(l.yield)
	defer timer.Stop()

	for {
		if l.enabled.Load() {
			if _, err := l.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.report(err)
			}
		}

		timer.Reset(l.yield)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

func (l *Loop) report(err error) {
	switch {
	case errors.Is(err, ErrNoFrame):
		l.log.Debug("Skipping cycle", zap.Error(err))
	case errors.Is(err, detector.ErrContractViolation):
		l.log.Warn("Discarding malformed detection", zap.Error(err))
	default:
		l.log.Warn("Cycle failed", zap.Error(err))
	}
}

// Step runs a single cycle and returns the published message.
func (l *Loop) Step(ctx context.Context) (*hub.SteeringMessage, error) {
	frame, err := l.source.Next(ctx)
	if err != nil {
		return nil, err
	}
	defer frame.Release()

	now := frame.CapturedAt
	if now.IsZero() {
		now = time.Now()
	}

	status := Status{TrackedIndex: -1}
	obs, idx, tracked := l.selector.Select(frame.Observations, now)

	state := l.debouncer.Update(l.rawGesture(&frame, &obs, tracked, now), now)
	status.Gesture = state

	if tracked {
		observed, distance := steering.Estimate(obs, frame.Width, frame.Height)
		status.Tracking = true
		status.TrackedIndex = idx
		status.Observed = observed
		status.Distance = distance
	}
	if tracked && (!l.requireFist || state.FistClosed) {
		status.Angle = l.filter.Update(status.Observed, true)
	} else {
		status.Angle = l.filter.Update(0, false)
	}

	l.frames++
	status.Frames = l.frames
	l.status.Store(&status)

	msg := hub.NewSteeringMessage(status.Angle, state.FistClosed, now)
	l.publisher.Publish(msg)
	return msg, nil
}

func (l *Loop) rawGesture(frame *Frame, obs *detector.Observation, tracked bool, now time.Time) bool {
	if l.mode == gesture.ModeFingers {
		return tracked && gesture.IsFist(obs)
	}

	if l.classifier != nil && frame.Image != nil && l.frames%l.interval == 0 {
		err := l.classifier.Submit(frame.Image, now)
		switch {
		case errors.Is(err, recognizer.ErrBusy):
			l.log.Debug("Classifier busy, frame not submitted")
		case err != nil:
			l.log.Warn("Classifier submission failed", zap.Error(err))
		}
	}
	return l.rawFist.Load()
}
