// Package gesture turns per-frame fist detections into a debounced "fist closed" latch.
package gesture

import "time"

// DefaultReleaseDelay is how long the latch stays closed after the raw signal drops.
const DefaultReleaseDelay = 500 * time.Millisecond

// Mode selects which raw signal feeds the Debouncer.
type Mode string

const (
	// ModeFingers derives the raw signal from landmark geometry every frame.
	ModeFingers Mode = "fingers"
	// ModeClassifier derives the raw signal from the asynchronous gesture classifier.
	ModeClassifier Mode = "classifier"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFingers || m == ModeClassifier
}

// State is the debounced gesture state.
type State struct {
	FistClosed  bool      `json:"fist_closed"`
	ClosedSince time.Time `json:"closed_since"`
}

// Debouncer latches a raw fist signal: it closes immediately and opens only once the
// raw signal has been false for the release delay since the last true sample.
// It is not safe for concurrent use; the control loop owns it.
type Debouncer struct {
	releaseDelay time.Duration
	state        State
}

// NewDebouncer creates a Debouncer. A non-positive delay selects DefaultReleaseDelay.
func NewDebouncer(releaseDelay time.Duration) *Debouncer {
	if releaseDelay <= 0 {
		releaseDelay = DefaultReleaseDelay
	}
	return &Debouncer{releaseDelay: releaseDelay}
}

// Update feeds one raw sample taken at now and returns the resulting state.
func (d *Debouncer) Update(raw bool, now time.Time) State {
	switch {
	case raw:
		d.state = State{FistClosed: true, ClosedSince: now}
	case d.state.FistClosed && now.Sub(d.state.ClosedSince) >= d.releaseDelay:
		d.state.FistClosed = false
	}
	return d.state
}

// State returns the current state without updating it.
func (d *Debouncer) State() State {
	return d.state
}

// ReleaseDelay returns the configured hold time.
func (d *Debouncer) ReleaseDelay() time.Duration {
	return d.releaseDelay
}
