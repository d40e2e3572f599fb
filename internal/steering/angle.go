package steering

import (
	"math"

	"github.com/ayusman/handwheel/internal/detector"
)

// Estimate returns the polar position of the hand relative to the frame center.
//
// The hand position is the center of the landmarks' pixel bounding box (not the centroid
// the Selector uses). The angle follows the usual math convention with "up" increasing,
// so image rows, which grow downward, are mirrored: points below the center map into
// (π, 2π). distance is the rounded pixel distance from the center.
func Estimate(obs detector.Observation, width, height int) (angle float64, distance int) {
	xmin, ymin, xmax, ymax := obs.PixelBounds(width, height)
	cx := floorDiv2(xmin + xmax)
	cy := floorDiv2(ymin + ymax)

	dx := float64(cx) - float64(width)/2
	dy := float64(cy) - float64(height)/2

	d := math.Sqrt(dx*dx + dy*dy)
	if d != 0 {
		angle = math.Acos(dx / d)
	}
	if dy > 0 {
		angle = 2*math.Pi - angle
	}

	return angle, int(math.Round(d))
}

func floorDiv2(v int) int {
	if v < 0 {
		return -((-v + 1) / 2)
	}
	return v / 2
}
