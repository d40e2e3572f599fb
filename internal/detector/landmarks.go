// Package detector provides hand landmark detection interfaces and the observation types
// consumed by the steering pipeline.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// FingerTips lists the tip landmarks of the four non-thumb fingers.
var FingerTips = [4]int{IndexTip, MiddleTip, RingTip, PinkyTip}

// Point is a landmark position in frame-normalized coordinates (0..1 on both axes,
// Y growing downward).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Observation is one detected hand in one frame.
type Observation struct {
	Points     [NumLandmarks]Point `json:"points"`
	Handedness string              `json:"handedness"` // "Left" or "Right"
	Score      float64             `json:"score"`
}

// Centroid returns the arithmetic mean of all landmark positions.
func (o *Observation) Centroid() Point {
	var sx, sy float64
	for _, p := range o.Points {
		sx += p.X
		sy += p.Y
	}
	return Point{X: sx / NumLandmarks, Y: sy / NumLandmarks}
}

// PixelBounds returns the bounding box of the landmarks in pixel space for a frame of
// the given size. Coordinates are truncated to whole pixels.
func (o *Observation) PixelBounds(width, height int) (xmin, ymin, xmax, ymax int) {
	for i, p := range o.Points {
		x := int(p.X * float64(width))
		y := int(p.Y * float64(height))
		if i == 0 {
			xmin, xmax, ymin, ymax = x, x, y, y
			continue
		}
		xmin = min(xmin, x)
		xmax = max(xmax, x)
		ymin = min(ymin, y)
		ymax = max(ymax, y)
	}
	return xmin, ymin, xmax, ymax
}
