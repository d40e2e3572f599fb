package recognizer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayusman/handwheel/internal/pyservice"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ScriptName is the MediaPipe gesture recognizer helper.
const ScriptName = "gesture_service.py"

// closeGrace is how long Close waits for the frame in flight.
const closeGrace = time.Second

type job struct {
	at   time.Time
	jpeg []byte
}

// ServiceClassifier classifies frames with the MediaPipe gesture recognizer running in
// a Python subprocess. At most one frame is in flight and one more may wait; further
// submissions are rejected with ErrBusy so classification cost stays bounded.
type ServiceClassifier struct {
	log      *zap.Logger
	proc     *pyservice.Process
	onResult ResultFunc

	jobs   chan job
	done   chan struct{}
	closed *atomic.Bool
	once   sync.Once
	wg     sync.WaitGroup
}

// NewServiceClassifier locates the helper script (script overrides the search) and starts
// the worker goroutine. The subprocess itself starts with the first frame.
func NewServiceClassifier(script, model string, onResult ResultFunc, log *zap.Logger) (*ServiceClassifier, error) {
	path := pyservice.FindScript(ScriptName, script)
	if path == "" {
		return nil, fmt.Errorf("%s not found", ScriptName)
	}

	var args []string
	if model != "" {
		args = append(args, "--model", model)
	}

	return newServiceClassifier(pyservice.New(path, args, log.Named("gesture-service")), onResult, log), nil
}

func newServiceClassifier(proc *pyservice.Process, onResult ResultFunc, log *zap.Logger) *ServiceClassifier {
	c := &ServiceClassifier{
		log:      log,
		proc:     proc,
		onResult: onResult,
		jobs:     make(chan job, 1),
		done:     make(chan struct{}),
		closed:   atomic.NewBool(false),
	}

	c.wg.Add(1)
	go c.run()

	return c
}

// Submit implements Classifier.
func (c *ServiceClassifier) Submit(frame *gocv.Mat, at time.Time) error {
	if c.closed.Load() {
		return ErrClosed
	}

	data, err := pyservice.EncodeJPEG(frame)
	if err != nil {
		return err
	}

	select {
	case c.jobs <- job{at: at, jpeg: data}:
		return nil
	default:
		return ErrBusy
	}
}

// Close implements Classifier. The frame in flight gets a short grace period, then the
// subprocess is killed.
func (c *ServiceClassifier) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})

	exited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(closeGrace):
		c.proc.Kill()
		<-exited
	}
	return nil
}

// run owns the subprocess; Close only ever kills it.
func (c *ServiceClassifier) run() {
	defer c.wg.Done()
	defer func() {
		if err := c.proc.Stop(); err != nil {
			c.log.Warn("Gesture service exited with error", zap.Error(err))
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case j := <-c.jobs:
			res, err := c.classify(j)
			select {
			case <-c.done:
				return
			default:
			}
			if err != nil {
				// A lost answer reports no gesture.
				c.log.Warn("Gesture classification failed", zap.Error(err))
				res = Result{Timestamp: j.at}
			}
			if c.onResult != nil {
				c.onResult(res)
			}
		}
	}
}

func (c *ServiceClassifier) classify(j job) (Result, error) {
	if err := c.proc.Start(); err != nil {
		return Result{}, err
	}

	header := binary.BigEndian.AppendUint64(nil, uint64(j.at.UnixMilli()))
	if err := c.proc.WriteFrame(header, j.jpeg); err != nil {
		return Result{}, err
	}

	line, err := c.proc.ReadLine()
	if err != nil {
		return Result{}, err
	}

	return ParseResult(line)
}

// ParseResult decodes one response line of the gesture service:
//
//	{"timestamp_ms": 1700000000000, "gestures": [{"label": "Closed_Fist", "score": 0.93}]}
func ParseResult(line []byte) (Result, error) {
	var response struct {
		TimestampMs int64      `json:"timestamp_ms"`
		Gestures    []Category `json:"gestures"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}

	sort.SliceStable(response.Gestures, func(i, j int) bool {
		return response.Gestures[i].Score > response.Gestures[j].Score
	})

	return Result{
		Timestamp:  time.UnixMilli(response.TimestampMs),
		Categories: response.Gestures,
	}, nil
}
