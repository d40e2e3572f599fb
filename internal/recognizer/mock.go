package recognizer

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockClassifier is a test implementation of Classifier. Every submission is answered
// synchronously with the configured categories.
type MockClassifier struct {
	mu         sync.Mutex
	categories []Category
	onResult   ResultFunc
	submitted  []time.Time
	closed     bool
}

// NewMockClassifier creates a MockClassifier that reports results to onResult.
func NewMockClassifier(onResult ResultFunc) *MockClassifier {
	return &MockClassifier{onResult: onResult}
}

// SetCategories sets the categories returned for subsequent submissions.
func (m *MockClassifier) SetCategories(categories ...Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = categories
}

// Submitted returns the timestamps of all submitted frames.
func (m *MockClassifier) Submitted() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.submitted...)
}

// Submit implements Classifier.
func (m *MockClassifier) Submit(frame *gocv.Mat, at time.Time) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.submitted = append(m.submitted, at)
	res := Result{Timestamp: at, Categories: append([]Category(nil), m.categories...)}
	fn := m.onResult
	m.mu.Unlock()

	if fn != nil {
		fn(res)
	}
	return nil
}

// Close implements Classifier.
func (m *MockClassifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
