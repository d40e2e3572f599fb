// Package pyservice runs the MediaPipe helper scripts as long-lived subprocesses and
// exchanges length-prefixed JPEG frames and JSON lines with them.
package pyservice

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Timeouts.
const (
	// DefaultReadTimeout bounds the wait for one response line. The first frame also pays
	// for model loading.
	DefaultReadTimeout = 10 * time.Second

	stopTimeout = 2 * time.Second
)

var (
	// ErrNotStarted is returned when frames are written to a process that is not running.
	ErrNotStarted = errors.New("service process not started")

	// ErrReadTimeout is returned when the process does not answer within the read timeout.
	ErrReadTimeout = errors.New("service process did not respond")
)

// Process is a helper speaking the frame protocol on stdin/stdout: each request is an
// optional fixed header, a 4-byte big-endian length and a JPEG payload; each response is
// one JSON line.
//
// Process is not safe for concurrent use; callers serialize access. The exception is
// Kill, which may be called from any goroutine. A failed write or read kills the
// subprocess, so the next Start launches a fresh one.
type Process struct {
	name  string // executable; empty runs the Python interpreter
	args  []string
	label string
	log   *zap.Logger

	readTimeout time.Duration

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	running *atomic.Pointer[os.Process]
}

// New creates a Process running script with the Python interpreter. The subprocess starts
// on Start.
func New(script string, args []string, log *zap.Logger) *Process {
	return newProcess("", append([]string{script}, args...), script, log)
}

// NewCommand creates a Process running the executable name directly.
func NewCommand(name string, args []string, log *zap.Logger) *Process {
	return newProcess(name, args, name, log)
}

func newProcess(name string, args []string, label string, log *zap.Logger) *Process {
	return &Process{
		name:        name,
		args:        args,
		label:       label,
		log:         log,
		readTimeout: DefaultReadTimeout,
		running:     atomic.NewPointer[os.Process](nil),
	}
}

// SetReadTimeout changes how long ReadLine waits. Zero or less restores the default.
func (p *Process) SetReadTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultReadTimeout
	}
	p.readTimeout = d
}

// Started reports whether the subprocess is running.
func (p *Process) Started() bool {
	return p.cmd != nil
}

// Start launches the subprocess if it is not already running.
func (p *Process) Start() error {
	if p.cmd != nil {
		return nil
	}

	name := p.name
	if name == "" {
		// Use virtual environment Python if available
		name = FindPython()
		if name == "" {
			name = "python3"
		}
	}

	cmd := exec.Command(name, p.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", filepath.Base(p.label), err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)
	p.running.Store(cmd.Process)
	p.log.Info("Service process started", zap.String("script", p.label), zap.Int("pid", cmd.Process.Pid))

	return nil
}

// WriteFrame sends header followed by the length-prefixed payload.
func (p *Process) WriteFrame(header, payload []byte) error {
	if p.cmd == nil {
		return ErrNotStarted
	}

	msg := make([]byte, 0, len(header)+4+len(payload))
	msg = append(msg, header...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(len(payload)))
	msg = append(msg, payload...)

	if _, err := p.stdin.Write(msg); err != nil {
		err = fmt.Errorf("write frame: %w", err)
		p.abort(err)
		return err
	}
	return nil
}

type lineResult struct {
	line []byte
	err  error
}

// ReadLine blocks until the subprocess writes a full response line or the read timeout
// passes.
func (p *Process) ReadLine() ([]byte, error) {
	if p.cmd == nil {
		return nil, ErrNotStarted
	}

	stdout := p.stdout
	ch := make(chan lineResult, 1)
	go func() {
		line, err := stdout.ReadBytes('\n')
		ch <- lineResult{line: line, err: err}
	}()

	timer := time.NewTimer(p.readTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			err := fmt.Errorf("read response: %w", r.err)
			p.abort(err)
			return nil, err
		}
		return r.line, nil
	case <-timer.C:
		err := fmt.Errorf("%w within %s", ErrReadTimeout, p.readTimeout)
		p.abort(err)
		// Stop closed stdout, which ends the read.
		<-ch
		return nil, err
	}
}

// Kill terminates the subprocess immediately. Blocked reads then fail and the owner
// cleans up. Safe to call from any goroutine.
func (p *Process) Kill() {
	if proc := p.running.Load(); proc != nil {
		_ = proc.Kill()
	}
}

// Stop closes stdin and waits for the subprocess to exit, killing it if it does not.
func (p *Process) Stop() error {
	if p.cmd == nil {
		return nil
	}

	if p.stdin != nil {
		p.stdin.Close()
	}

	cmd := p.cmd
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(stopTimeout):
		_ = cmd.Process.Kill()
		err = <-done
	}

	p.running.Store(nil)
	p.cmd = nil
	p.stdin = nil
	p.stdout = nil
	p.log.Info("Service process stopped", zap.String("script", p.label))

	return err
}

// abort kills a misbehaving subprocess and forgets it so the next Start relaunches.
func (p *Process) abort(cause error) {
	p.log.Warn("Service process failed, restarting on next frame", zap.String("script", p.label), zap.Error(cause))
	p.Kill()
	_ = p.Stop()
}

// EncodeJPEG encodes frame as JPEG bytes.
func EncodeJPEG(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close, so copy out.
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

// FindScript resolves a helper script by name. An explicit override wins when it exists;
// otherwise scripts/, ../scripts/, the executable's directory and ~/.handwheel/scripts are
// searched. Returns "" when nothing is found.
func FindScript(name, override string) string {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return absOr(override)
		}
		return ""
	}

	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", name),
		filepath.Join("..", "scripts", name),
		filepath.Join(execDir, "scripts", name),
		filepath.Join(os.Getenv("HOME"), ".handwheel", "scripts", name),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return absOr(path)
		}
	}
	return ""
}

// FindPython looks for a Python interpreter in a virtual environment next to the project
// or under ~/.handwheel.
func FindPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handwheel/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return absOr(path)
		}
	}
	return ""
}

func absOr(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
