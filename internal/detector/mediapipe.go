package detector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ayusman/handwheel/internal/pyservice"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ScriptName is the MediaPipe hand landmarker helper.
const ScriptName = "mediapipe_service.py"

// idleShutdown stops the helper after this long without a Detect call.
const idleShutdown = 30 * time.Second

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
type MediaPipeDetector struct {
	config    Config
	log       *zap.Logger
	proc      *pyservice.Process
	mu        sync.Mutex
	idleTimer *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config, log *zap.Logger) (*MediaPipeDetector, error) {
	script := pyservice.FindScript(ScriptName, config.Script)
	if script == "" {
		return nil, fmt.Errorf("%s not found", ScriptName)
	}

	args := []string{
		"--max-hands", strconv.Itoa(config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(config.MinTrackingConf, 'f', -1, 64),
	}

	return &MediaPipeDetector{
		config: config,
		log:    log,
		proc:   pyservice.New(script, args, log.Named("mediapipe")),
	}, nil
}

// Detect analyzes a frame and returns detected hands.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.proc.Start(); err != nil {
		return nil, err
	}

	data, err := pyservice.EncodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	if err := d.proc.WriteFrame(nil, data); err != nil {
		return nil, err
	}

	line, err := d.proc.ReadLine()
	if err != nil {
		return nil, err
	}

	d.resetIdleTimer()

	return ParseObservations(line)
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	return d.proc.Stop()
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.proc.Stop(); err != nil {
			d.log.Warn("Idle shutdown of mediapipe service failed", zap.Error(err))
		}
	})
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point `json:"points"`
	Handedness string  `json:"handedness"`
	Score      float64 `json:"score"`
}

// ParseObservations decodes one response line of the MediaPipe service. Any hand that
// does not carry exactly NumLandmarks points fails the whole frame with
// ErrContractViolation.
func ParseObservations(line []byte) ([]Observation, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrContractViolation, err)
	}

	result := make([]Observation, len(response.Hands))
	for i, h := range response.Hands {
		if len(h.Points) != NumLandmarks {
			return nil, fmt.Errorf("%w: hand %d has %d landmarks, want %d",
				ErrContractViolation, i, len(h.Points), NumLandmarks)
		}
		result[i] = Observation{
			Handedness: h.Handedness,
			Score:      h.Score,
		}
		copy(result[i].Points[:], h.Points)
	}

	return result, nil
}
