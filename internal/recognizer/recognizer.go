// Package recognizer submits frames to an external gesture classifier and delivers its
// ranked results asynchronously.
package recognizer

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ClosedFist is the classifier label for a closed fist.
const ClosedFist = "Closed_Fist"

// ErrBusy is returned by Submit when a previous frame is still being classified.
var ErrBusy = errors.New("classifier busy")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("classifier closed")

// Category is one ranked classification.
type Category struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is the classification of one submitted frame. Categories are ordered by
// descending score and may be empty.
type Result struct {
	Timestamp  time.Time
	Categories []Category
}

// Top returns the highest ranked category.
func (r Result) Top() (Category, bool) {
	if len(r.Categories) == 0 {
		return Category{}, false
	}
	return r.Categories[0], true
}

// IsFist reports whether the top-ranked label is ClosedFist.
func (r Result) IsFist() bool {
	top, ok := r.Top()
	return ok && top.Label == ClosedFist
}

// ResultFunc receives classification results. It is called from the classifier's own
// goroutine.
type ResultFunc func(Result)

// Classifier is an asynchronous gesture classifier.
type Classifier interface {
	// Submit queues frame for classification without blocking. The frame is encoded
	// before Submit returns, so the caller may release it afterwards.
	Submit(frame *gocv.Mat, at time.Time) error

	// Close stops the classifier. No results are delivered after Close returns.
	Close() error
}
