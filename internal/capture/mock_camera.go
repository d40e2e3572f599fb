package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera produces blank frames of a fixed size for testing.
type MockCamera struct {
	mu      sync.Mutex
	width   int
	height  int
	running bool
	failing int
	reads   int
}

// NewMockCamera creates a MockCamera producing width x height frames.
func NewMockCamera(width, height int) *MockCamera {
	return &MockCamera{width: width, height: height}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

// FailNext makes the next n reads fail with ErrEmptyFrame.
func (c *MockCamera) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = n
}

// Reads returns the number of successful reads.
func (c *MockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	if c.failing > 0 {
		c.failing--
		return nil, ErrEmptyFrame
	}
	if c.width <= 0 || c.height <= 0 {
		return nil, errors.New("mock camera has no frame size")
	}

	frame := gocv.NewMatWithSize(c.height, c.width, gocv.MatTypeCV8UC3)
	c.reads++
	return &frame, nil
}

func (c *MockCamera) Size() (int, int) {
	return c.width, c.height
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
