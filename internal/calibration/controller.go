// Package calibration implements the interactive four-corner calibration
// state machine.
//
// The controller is Inactive until Enter opens a parameter edit session and
// moves it to Calibrating with corner 0 selected. While calibrating, a
// pointer drag moves the selected corner; releasing the pointer stores the
// position and advances the selection to the next corner (0→1→2→3→0).
// Accept persists every edit made since Enter, Cancel restores them.
//
// The controller is not tied to a thread. All calls are serialised by its own
// lock, and callers in the pipeline route them through the tick runner so
// corner edits never overlap a frame pass.
package calibration

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/ironsheep/shadow-detector/internal/params"
)

var (
	ErrNotCalibrating     = errors.New("calibration is not active")
	ErrAlreadyCalibrating = errors.New("calibration is already active")
	ErrInvalidCorner      = errors.New("invalid corner index")
)

// State is the controller state.
type State int

const (
	Inactive State = iota
	Calibrating
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Calibrating:
		return "calibrating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateListener is called after each state change, outside the controller's
// lock.
type StateListener func(prev, next State)

// Controller drives calibration against a parameter store.
type Controller struct {
	mu     sync.Mutex
	store  *params.Store
	logger *slog.Logger

	state    State
	selected int
	dragging bool
	temp     params.Point

	width, height int
	bounded       bool

	listeners []StateListener
}

// New creates an Inactive controller editing store. A nil logger discards
// output.
func New(store *params.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{store: store, logger: logger}
}

// AddListener registers l for state changes.
func (c *Controller) AddListener(l StateListener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// SetBounds sets the frame size pointer positions are clamped to.
func (c *Controller) SetBounds(width, height int) {
	c.mu.Lock()
	c.width, c.height = width, height
	c.bounded = width > 0 && height > 0
	if c.state == Calibrating && !c.dragging {
		c.refresh()
	}
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Selected returns the selected corner. It is meaningful only while
// calibrating.
func (c *Controller) Selected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

// WorkingPoint returns the live position of the selected corner.
func (c *Controller) WorkingPoint() params.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temp
}

// Points returns the effective calibration corners. While calibrating, the
// selected corner is the live working point so the rectified view follows a
// drag before it is released.
func (c *Controller) Points() [params.NumCorners]params.Point {
	pts := c.store.Points()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Calibrating {
		pts[c.selected] = c.temp
	}
	return pts
}

// Enter opens an edit session and selects corner 0.
func (c *Controller) Enter() error {
	c.mu.Lock()
	if c.state == Calibrating {
		c.mu.Unlock()
		return ErrAlreadyCalibrating
	}
	c.store.BeginEdit()
	c.state = Calibrating
	c.selected = 0
	c.dragging = false
	c.refresh()
	c.mu.Unlock()

	c.logger.Info("calibration started")
	c.notify(Inactive, Calibrating)
	return nil
}

// Accept persists the session and returns to Inactive. When saving fails the
// controller stays in Calibrating.
func (c *Controller) Accept() error {
	c.mu.Lock()
	if c.state != Calibrating {
		c.mu.Unlock()
		return ErrNotCalibrating
	}
	if err := c.store.Commit(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	c.state = Inactive
	c.dragging = false
	c.mu.Unlock()

	c.logger.Info("calibration accepted")
	c.notify(Calibrating, Inactive)
	return nil
}

// Cancel restores the values captured by Enter and returns to Inactive.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.state != Calibrating {
		c.mu.Unlock()
		return ErrNotCalibrating
	}
	if err := c.store.Cancel(); err != nil && !errors.Is(err, params.ErrNoEditSession) {
		c.mu.Unlock()
		return err
	}
	c.state = Inactive
	c.dragging = false
	c.mu.Unlock()

	c.logger.Info("calibration cancelled")
	c.notify(Calibrating, Inactive)
	return nil
}

// Select jumps to corner i.
func (c *Controller) Select(i int) error {
	if i < 0 || i >= params.NumCorners {
		return fmt.Errorf("%w: %d", ErrInvalidCorner, i)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Calibrating {
		return ErrNotCalibrating
	}
	c.selected = i
	c.dragging = false
	c.refresh()
	return nil
}

// PointerDown starts dragging the selected corner to p.
func (c *Controller) PointerDown(p params.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Calibrating {
		return ErrNotCalibrating
	}
	c.dragging = true
	c.temp = c.clamp(p)
	return nil
}

// PointerMove moves the working point while dragging. Moves without a drag
// are ignored.
func (c *Controller) PointerMove(p params.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Calibrating {
		return ErrNotCalibrating
	}
	if c.dragging {
		c.temp = c.clamp(p)
	}
	return nil
}

// PointerUp stores the dragged position and advances to the next corner.
// A release without a drag does nothing.
func (c *Controller) PointerUp() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Calibrating {
		return ErrNotCalibrating
	}
	if !c.dragging {
		return nil
	}
	if err := c.store.SetPoint(c.selected, c.temp); err != nil {
		return err
	}
	c.logger.Debug("calibration corner set", "corner", c.selected, "x", c.temp.X, "y", c.temp.Y)

	c.dragging = false
	c.selected = (c.selected + 1) % params.NumCorners
	c.refresh()
	return nil
}

// CancelDrag drops an in-progress drag without moving the corner or changing
// the selection.
func (c *Controller) CancelDrag() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Calibrating {
		return ErrNotCalibrating
	}
	c.dragging = false
	c.refresh()
	return nil
}

// refresh loads the working point from the stored value of the selected
// corner. c.mu must be held.
func (c *Controller) refresh() {
	pts := c.store.Points()
	c.temp = pts[c.selected]
}

// clamp limits p to the frame bounds. Non-finite coordinates become 0.
// c.mu must be held.
func (c *Controller) clamp(p params.Point) params.Point {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) {
		p.X = 0
	}
	if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		p.Y = 0
	}
	if !c.bounded {
		return p
	}
	p.X = math.Max(0, math.Min(float64(c.width), p.X))
	p.Y = math.Max(0, math.Min(float64(c.height), p.Y))
	return p
}

func (c *Controller) notify(prev, next State) {
	c.mu.Lock()
	ls := make([]StateListener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()

	c.logger.Debug("calibration state transition", "from", prev.String(), "to", next.String())
	for _, l := range ls {
		l(prev, next)
	}
}
