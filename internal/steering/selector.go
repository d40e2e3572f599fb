// Package steering turns tracked hand positions into a stabilized steering wheel angle.
package steering

import (
	"math"
	"time"

	"github.com/ayusman/handwheel/internal/detector"
)

// DefaultHandTimeout is how long a hand may go unseen before tracking is dropped.
const DefaultHandTimeout = 2 * time.Second

// Selector picks the observation most likely to be the hand tracked in the previous
// frame. The detector gives no identities, so continuity is approximated by choosing the
// observation whose centroid moved least.
type Selector struct {
	timeout time.Duration

	lastCentroid detector.Point
	hasCentroid  bool
	lastSeenAt   time.Time
	trackedIndex int
}

// NewSelector creates a Selector that forgets the tracked hand after timeout without
// observations. A non-positive timeout selects DefaultHandTimeout.
func NewSelector(timeout time.Duration) *Selector {
	if timeout <= 0 {
		timeout = DefaultHandTimeout
	}
	return &Selector{
		timeout:      timeout,
		trackedIndex: -1,
	}
}

// Select returns the tracked observation for this frame and its index in obs.
// ok is false when no observation is available; in that case the tracked state is kept
// as long as the timeout has not elapsed and cleared afterwards.
//
// Without a previous centroid the first observation wins. Otherwise the observation with
// the nearest centroid is chosen, ties going to the lowest index.
func (s *Selector) Select(obs []detector.Observation, now time.Time) (detector.Observation, int, bool) {
	if len(obs) == 0 {
		if now.Sub(s.lastSeenAt) > s.timeout {
			s.Reset()
		}
		return detector.Observation{}, -1, false
	}

	best := 0
	centroid := obs[0].Centroid()

	if s.hasCentroid && len(obs) > 1 {
		bestDist := math.Inf(1)
		for i := range obs {
			c := obs[i].Centroid()
			if d := c.Distance(s.lastCentroid); d < bestDist {
				best, bestDist, centroid = i, d, c
			}
		}
	}

	s.lastCentroid = centroid
	s.hasCentroid = true
	s.lastSeenAt = now
	s.trackedIndex = best

	return obs[best], best, true
}

// Reset forgets the tracked hand.
func (s *Selector) Reset() {
	s.lastCentroid = detector.Point{}
	s.hasCentroid = false
	s.trackedIndex = -1
}

// Tracking reports whether a hand is currently tracked.
func (s *Selector) Tracking() bool {
	return s.trackedIndex >= 0
}

// TrackedIndex returns the index chosen in the most recent frame, or -1.
func (s *Selector) TrackedIndex() int {
	return s.trackedIndex
}
