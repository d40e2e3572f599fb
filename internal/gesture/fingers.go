package gesture

import "github.com/ayusman/handwheel/internal/detector"

// MinClosedFingers is how many fingers must be closed before the hand counts as a fist.
const MinClosedFingers = 3

// FingerClosed reports whether the finger ending at tip is curled: its tip is closer to
// the wrist than the joint just below it.
func FingerClosed(obs *detector.Observation, tip int) bool {
	wrist := obs.Points[detector.Wrist]
	return obs.Points[tip].Distance(wrist) < obs.Points[tip-1].Distance(wrist)
}

// ClosedFingers counts the curled non-thumb fingers.
func ClosedFingers(obs *detector.Observation) int {
	n := 0
	for _, tip := range detector.FingerTips {
		if FingerClosed(obs, tip) {
			n++
		}
	}
	return n
}

// IsFist reports whether more than two of the four fingers are closed.
func IsFist(obs *detector.Observation) bool {
	return ClosedFingers(obs) >= MinClosedFingers
}
