package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"
)

// ErrRunnerStopped is returned by Do once Run has returned.
var ErrRunnerStopped = errors.New("tick runner stopped")

type command struct {
	fn   func() error
	done chan error
}

// Runner drives a Detector at a fixed tick rate on one goroutine. Commands
// passed to Do run on the same goroutine between ticks, so parameter and
// calibration changes never overlap a frame pass.
type Runner struct {
	detector *Detector
	interval time.Duration
	logger   *slog.Logger

	// InitTimeout logs a warning when the camera has not delivered a frame
	// within this duration of Run starting. Zero disables the watchdog.
	InitTimeout time.Duration

	cmds    chan command
	stopped chan struct{}
}

// NewRunner creates a runner ticking hz times per second.
func NewRunner(d *Detector, hz int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if hz <= 0 {
		hz = 60
	}
	return &Runner{
		detector: d,
		interval: time.Second / time.Duration(hz),
		logger:   logger,
		cmds:     make(chan command),
		stopped:  make(chan struct{}),
	}
}

// Detector returns the driven detector.
func (r *Runner) Detector() *Detector {
	return r.detector
}

// Run ticks until ctx is cancelled. It must be called once.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var watchdog <-chan time.Time
	if r.InitTimeout > 0 {
		t := time.NewTimer(r.InitTimeout)
		defer t.Stop()
		watchdog = t.C
	}

	r.logger.Debug("tick runner started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("tick runner stopped")
			return nil
		case c := <-r.cmds:
			c.done <- r.safeDo(c.fn)
		case <-ticker.C:
			r.safeTick()
		case <-watchdog:
			select {
			case <-r.detector.Initialized():
			default:
				r.logger.Warn("camera has not delivered a frame", "waited", r.InitTimeout)
			}
		}
	}
}

// Do runs fn on the tick goroutine and returns its error. It returns early
// when ctx is done or the runner has stopped.
func (r *Runner) Do(ctx context.Context, fn func() error) error {
	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case r.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrRunnerStopped
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) safeTick() {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("tick panic", "error", v, "stack", string(debug.Stack()))
		}
	}()
	r.detector.Tick()
}

func (r *Runner) safeDo(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("command panic", "error", v, "stack", string(debug.Stack()))
			err = fmt.Errorf("command failed: %v", v)
		}
	}()
	return fn()
}
