package steering

import "math"

// Filter defaults.
const (
	// RestAngle is the upright wheel position.
	RestAngle = math.Pi / 2
	// DefaultMaxStep bounds how far the wheel may turn in one update.
	DefaultMaxStep = 0.5
	// DefaultRecenterStep is how far the wheel returns toward RestAngle per update
	// while no hand is tracked.
	DefaultRecenterStep = 0.1
)

// Filter integrates observed hand angles into a persistent wheel angle.
//
// The angle is never wrapped: it is an accumulated rotation amount, not a heading.
type Filter struct {
	maxStep      float64
	recenterStep float64

	angle   float64
	last    float64
	hasLast bool
}

// NewFilter creates a Filter at RestAngle. Non-positive steps select the defaults.
func NewFilter(maxStep, recenterStep float64) *Filter {
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	if recenterStep <= 0 {
		recenterStep = DefaultRecenterStep
	}
	return &Filter{
		maxStep:      maxStep,
		recenterStep: recenterStep,
		angle:        RestAngle,
	}
}

// Update feeds one frame into the filter and returns the wheel angle.
//
// With tracked set, the change between the previous and the new observed angle is
// clamped to ±maxStep and applied. Without a tracked hand the wheel recenters.
func (f *Filter) Update(observed float64, tracked bool) float64 {
	if !tracked {
		f.recenter()
		return f.angle
	}

	if f.hasLast {
		delta := clamp(f.last-observed, -f.maxStep, f.maxStep)
		f.angle -= delta
	}
	f.last = observed
	f.hasLast = true

	return f.angle
}

// recenter moves the angle one step toward RestAngle without overshooting and forgets
// the last observed angle.
func (f *Filter) recenter() {
	if f.angle < RestAngle {
		f.angle = math.Min(f.angle+f.recenterStep, RestAngle)
	} else {
		f.angle = math.Max(f.angle-f.recenterStep, RestAngle)
	}
	f.hasLast = false
}

// Angle returns the current wheel angle.
func (f *Filter) Angle() float64 {
	return f.angle
}

// LastObserved returns the last observed hand angle, if any.
func (f *Filter) LastObserved() (float64, bool) {
	return f.last, f.hasLast
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
