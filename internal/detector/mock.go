package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []Observation
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]Observation(nil), m.hands...), nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// ObservationAt returns an observation with every landmark at (x, y).
func ObservationAt(x, y float64) Observation {
	var o Observation
	o.Handedness = "Right"
	o.Score = 0.9
	for i := range o.Points {
		o.Points[i] = Point{X: x, Y: y}
	}
	return o
}

// FistObservation returns a preset observation of a closed fist: all four fingers are
// curled so their tips sit closer to the wrist than their distal joints.
func FistObservation() Observation {
	o := Observation{
		Handedness: "Right",
		Score:      0.95,
	}

	o.Points[Wrist] = Point{X: 0.5, Y: 0.8}

	o.Points[ThumbCMC] = Point{X: 0.55, Y: 0.75}
	o.Points[ThumbMCP] = Point{X: 0.58, Y: 0.70}
	o.Points[ThumbIP] = Point{X: 0.57, Y: 0.66}
	o.Points[ThumbTip] = Point{X: 0.54, Y: 0.65}

	o.Points[IndexMCP] = Point{X: 0.55, Y: 0.70}
	o.Points[IndexPIP] = Point{X: 0.55, Y: 0.68}
	o.Points[IndexDIP] = Point{X: 0.52, Y: 0.70}
	o.Points[IndexTip] = Point{X: 0.50, Y: 0.72}

	o.Points[MiddleMCP] = Point{X: 0.50, Y: 0.68}
	o.Points[MiddlePIP] = Point{X: 0.50, Y: 0.66}
	o.Points[MiddleDIP] = Point{X: 0.47, Y: 0.68}
	o.Points[MiddleTip] = Point{X: 0.45, Y: 0.70}

	o.Points[RingMCP] = Point{X: 0.45, Y: 0.70}
	o.Points[RingPIP] = Point{X: 0.45, Y: 0.68}
	o.Points[RingDIP] = Point{X: 0.42, Y: 0.70}
	o.Points[RingTip] = Point{X: 0.41, Y: 0.73}

	o.Points[PinkyMCP] = Point{X: 0.40, Y: 0.72}
	o.Points[PinkyPIP] = Point{X: 0.40, Y: 0.70}
	o.Points[PinkyDIP] = Point{X: 0.37, Y: 0.72}
	o.Points[PinkyTip] = Point{X: 0.38, Y: 0.75}

	return o
}

// OpenPalmObservation returns a preset observation of an open palm with all fingers
// extended upward.
func OpenPalmObservation() Observation {
	o := Observation{
		Handedness: "Right",
		Score:      0.95,
	}

	o.Points[Wrist] = Point{X: 0.5, Y: 0.8}

	o.Points[ThumbCMC] = Point{X: 0.55, Y: 0.75}
	o.Points[ThumbMCP] = Point{X: 0.62, Y: 0.70}
	o.Points[ThumbIP] = Point{X: 0.68, Y: 0.65}
	o.Points[ThumbTip] = Point{X: 0.73, Y: 0.60}

	o.Points[IndexMCP] = Point{X: 0.55, Y: 0.68}
	o.Points[IndexPIP] = Point{X: 0.57, Y: 0.55}
	o.Points[IndexDIP] = Point{X: 0.58, Y: 0.45}
	o.Points[IndexTip] = Point{X: 0.58, Y: 0.35}

	o.Points[MiddleMCP] = Point{X: 0.50, Y: 0.66}
	o.Points[MiddlePIP] = Point{X: 0.50, Y: 0.52}
	o.Points[MiddleDIP] = Point{X: 0.50, Y: 0.40}
	o.Points[MiddleTip] = Point{X: 0.50, Y: 0.28}

	o.Points[RingMCP] = Point{X: 0.45, Y: 0.68}
	o.Points[RingPIP] = Point{X: 0.43, Y: 0.55}
	o.Points[RingDIP] = Point{X: 0.42, Y: 0.45}
	o.Points[RingTip] = Point{X: 0.42, Y: 0.35}

	o.Points[PinkyMCP] = Point{X: 0.40, Y: 0.70}
	o.Points[PinkyPIP] = Point{X: 0.37, Y: 0.60}
	o.Points[PinkyDIP] = Point{X: 0.35, Y: 0.50}
	o.Points[PinkyTip] = Point{X: 0.34, Y: 0.42}

	return o
}
