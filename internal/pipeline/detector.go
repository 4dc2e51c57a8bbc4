// Package pipeline turns camera frames into shadow polygons.
//
// A Detector performs one pass per display tick: poll the camera, rectify
// the frame through the calibration quad, segment it into a shadow mask and
// extract the shadow polygons in world space. The result of each pass is
// published as an immutable View. A Runner owns the Detector and drives it
// from a single goroutine, executing control commands between ticks.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthonynsimon/bild/clone"

	"github.com/ironsheep/shadow-detector/internal/calibration"
	"github.com/ironsheep/shadow-detector/internal/camera"
	"github.com/ironsheep/shadow-detector/internal/detection"
	"github.com/ironsheep/shadow-detector/internal/imaging"
	"github.com/ironsheep/shadow-detector/internal/metrics"
	"github.com/ironsheep/shadow-detector/internal/params"
	"github.com/ironsheep/shadow-detector/internal/rectify"
	"github.com/ironsheep/shadow-detector/internal/segment"
	"github.com/ironsheep/shadow-detector/internal/viewport"
)

// ErrNotStarted is returned by operations that need an open camera.
var ErrNotStarted = errors.New("detector has no camera stream")

// EventKind identifies a lifecycle event.
type EventKind int

const (
	// EventInitDone fires when the camera delivers its negotiated size.
	EventInitDone EventKind = iota
	// EventFirstFrame fires when the first processed view is published.
	EventFirstFrame
)

func (k EventKind) String() string {
	switch k {
	case EventInitDone:
		return "init_done"
	case EventFirstFrame:
		return "first_frame"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to listeners. Width and Height are the frame size.
type Event struct {
	Kind   EventKind
	Width  int
	Height int
}

// Listener receives lifecycle events on the tick goroutine.
type Listener func(Event)

// Texture names accepted by View.Texture.
const (
	TextureRaw       = "raw"
	TextureRectified = "rectified"
	TextureAdd       = "add"
	TextureRed       = "red"
	TextureGreen     = "green"
	TextureBlue      = "blue"
	TextureGray      = "gray"
	TextureMask      = "mask"
)

// TextureNames lists every texture in display order.
var TextureNames = []string{
	TextureRaw, TextureRectified, TextureAdd,
	TextureRed, TextureGreen, TextureBlue,
	TextureGray, TextureMask,
}

// View is the published result of one processed frame. Nothing in a View is
// modified after publication. Image fields are nil when views are disabled.
type View struct {
	Sequence    uint64
	Width       int
	Height      int
	ProcessedAt time.Time

	Raw       *image.RGBA // camera frame, with calibration markers when enabled
	Rectified *image.RGBA
	Composite *image.RGBA
	Red       *image.Gray
	Green     *image.Gray
	Blue      *image.Gray
	Gray      *image.Gray
	Mask      *image.Gray

	Shadows []detection.Shadow
	Corners [params.NumCorners]params.Point
	Params  params.DetectionParameters
}

// Texture returns the named image, or nil when it was not produced.
func (v *View) Texture(name string) (image.Image, error) {
	var img image.Image
	switch name {
	case TextureRaw:
		img = v.Raw
	case TextureRectified:
		img = v.Rectified
	case TextureAdd:
		img = v.Composite
	case TextureRed:
		img = v.Red
	case TextureGreen:
		img = v.Green
	case TextureBlue:
		img = v.Blue
	case TextureGray:
		img = v.Gray
	case TextureMask:
		img = v.Mask
	default:
		return nil, fmt.Errorf("unknown texture %q", name)
	}
	if isNil(img) {
		return nil, nil
	}
	return img, nil
}

func isNil(img image.Image) bool {
	switch v := img.(type) {
	case nil:
		return true
	case *image.RGBA:
		return v == nil
	case *image.Gray:
		return v == nil
	}
	return false
}

// Options configures a Detector.
type Options struct {
	// Selector names the camera by index or name; empty picks the default.
	Selector string
	Request  camera.Request
	Mapper   viewport.Mapper

	// Views publishes the intermediate images. Shadows are always published.
	Views bool
	// DrawPoints overlays the calibration corners on the raw frame.
	DrawPoints  bool
	MarkerStyle imaging.MarkerStyle
}

// Status summarises the detector for display.
type Status struct {
	Device       string `json:"device,omitempty"`
	DeviceKind   string `json:"device_kind,omitempty"`
	Playing      bool   `json:"playing"`
	Initialized  bool   `json:"initialized"`
	FirstFrame   bool   `json:"first_frame"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Sequence     uint64 `json:"sequence"`
	Shadows      int    `json:"shadows"`
	HasTransform bool   `json:"has_transform"`
	Calibration  string `json:"calibration"`
	Selected     int    `json:"selected_corner"`
	Dragging     bool   `json:"dragging"`
}

// Detector runs the per-frame shadow pipeline. Tick, Start and SelectDevice
// must be called from one goroutine; View, Status and AddListener may be
// called from any goroutine.
type Detector struct {
	logger    *slog.Logger
	driver    camera.Driver
	store     *params.Store
	calib     *calibration.Controller
	rectifier *rectify.Rectifier
	segmenter *segment.Segmenter
	metrics   *metrics.Metrics
	opts      Options

	frame        *image.RGBA
	lastRejected *[params.NumCorners]params.Point

	mu          sync.Mutex
	stream      camera.Stream
	device      camera.DeviceDescriptor
	width       int
	height      int
	initDone    bool
	initFired   bool
	firstFired  bool
	sequence    uint64
	listeners   []Listener
	initialized chan struct{}

	view atomic.Pointer[View]
}

// NewDetector wires a detector. m and logger may be nil.
func NewDetector(driver camera.Driver, store *params.Store, calib *calibration.Controller, m *metrics.Metrics, opts Options, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m == nil {
		m = metrics.New()
	}
	if opts.MarkerStyle.Radius <= 0 {
		opts.MarkerStyle = imaging.DefaultMarkerStyle()
	}

	seg := segment.New()
	seg.SkipChannels = !opts.Views

	d := &Detector{
		logger:      logger,
		driver:      driver,
		store:       store,
		calib:       calib,
		rectifier:   rectify.New(logger),
		segmenter:   seg,
		metrics:     m,
		opts:        opts,
		initialized: make(chan struct{}),
	}
	calib.AddListener(func(_, next calibration.State) {
		m.SetCalibrating(next == calibration.Calibrating)
	})
	return d
}

// AddListener registers l for lifecycle events.
func (d *Detector) AddListener(l Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// Initialized is closed once the first frame size is known.
func (d *Detector) Initialized() <-chan struct{} {
	return d.initialized
}

// Start opens and starts the configured camera. On failure the error is
// logged and returned, and initialization never completes until a device is
// selected with SelectDevice.
func (d *Detector) Start() error {
	return d.open(d.opts.Selector)
}

// SelectDevice stops the current stream and opens the device named by
// selector. The frame size is renegotiated on the next frame; lifecycle
// events that already fired do not fire again.
func (d *Detector) SelectDevice(selector string) error {
	d.Stop()
	return d.open(selector)
}

func (d *Detector) open(selector string) error {
	stream, dev, err := camera.Open(d.driver, selector, d.opts.Request, d.logger)
	if err != nil {
		d.logger.Error("camera initialization failed", "selector", selector, "error", err)
		return err
	}
	if err := stream.Start(); err != nil {
		d.logger.Error("camera start failed", "device", dev.Name, "error", err)
		return fmt.Errorf("start camera %q: %w", dev.Name, err)
	}

	d.mu.Lock()
	d.stream = stream
	d.device = dev
	d.initDone = false
	d.mu.Unlock()
	return nil
}

// Stop stops the camera stream.
func (d *Detector) Stop() {
	d.mu.Lock()
	stream := d.stream
	d.stream = nil
	d.mu.Unlock()
	if stream != nil {
		stream.Stop()
	}
}

// Tick runs one display tick and reports whether a new View was published.
//
// Until the camera has delivered a frame, Tick only waits for it: the first
// frame fixes the frame size, fills uncalibrated corners with the frame
// corners and fires EventInitDone. Processing starts on the following tick.
// A tick with no new frame does nothing.
func (d *Detector) Tick() bool {
	d.mu.Lock()
	stream, initDone := d.stream, d.initDone
	d.mu.Unlock()
	if stream == nil {
		return false
	}

	if !initDone {
		d.tryInit(stream)
		return false
	}

	if !stream.Poll(d.frame) {
		d.metrics.IdleTicks.Add(1)
		return false
	}
	d.metrics.FramesPolled.Add(1)
	return d.process()
}

func (d *Detector) tryInit(stream camera.Stream) {
	if !stream.Poll(nil) {
		return
	}
	w, h := stream.Size()
	if w <= 0 || h <= 0 {
		return
	}

	d.frame = image.NewRGBA(image.Rect(0, 0, w, h))
	if n := d.store.DefaultCorners(w, h); n > 0 {
		d.logger.Info("calibration corners defaulted to frame corners", "count", n)
	}
	d.calib.SetBounds(w, h)

	d.mu.Lock()
	d.width, d.height = w, h
	d.initDone = true
	fire := !d.initFired
	d.initFired = true
	d.mu.Unlock()

	d.logger.Info("camera initialized", "width", w, "height", h)
	if fire {
		close(d.initialized)
		d.emit(Event{Kind: EventInitDone, Width: w, Height: h})
	}
}

func (d *Detector) process() bool {
	start := time.Now()
	w, h := d.frame.Bounds().Dx(), d.frame.Bounds().Dy()

	p := d.store.Params()
	corners := d.calib.Points()

	if err := d.rectifier.Update(corners, w, h); err != nil {
		if d.lastRejected == nil || *d.lastRejected != corners {
			d.metrics.DegenerateCalibrations.Add(1)
			c := corners
			d.lastRejected = &c
		}
	}

	rectified := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := d.rectifier.Warp(d.frame, rectified); err != nil {
		d.metrics.FramesSkipped.Add(1)
		d.logger.Debug("frame skipped", "error", err)
		return false
	}

	res := d.segmenter.Segment(rectified, p)
	shadows := detection.ExtractShadows(res.Mask, detection.Options{
		MinArea:       float64(p.MinContourArea),
		Simplify:      p.SimplifyContours,
		EpsilonFactor: p.EpsilonFactor,
	}, d.opts.Mapper.Map)

	d.mu.Lock()
	d.sequence++
	seq := d.sequence
	d.mu.Unlock()

	view := &View{
		Sequence:    seq,
		Width:       w,
		Height:      h,
		ProcessedAt: time.Now(),
		Shadows:     shadows,
		Corners:     corners,
		Params:      p,
	}
	if d.opts.Views {
		view.Rectified = rectified
		view.Composite = res.Composite
		view.Red, view.Green, view.Blue = res.Red, res.Green, res.Blue
		view.Gray = res.Gray
		view.Mask = res.Mask
	}
	if d.opts.DrawPoints {
		view.Raw = imaging.DrawMarkers(d.frame, d.markers(corners), d.opts.MarkerStyle)
	} else if d.opts.Views {
		view.Raw = clone.AsRGBA(d.frame)
	}
	d.view.Store(view)

	elapsed := time.Since(start)
	d.metrics.ObserveProcess(elapsed, len(shadows))
	d.logger.Debug("frame processed", "sequence", seq, "shadows", len(shadows), "elapsed", elapsed)

	d.mu.Lock()
	fire := !d.firstFired
	d.firstFired = true
	d.mu.Unlock()
	if fire {
		d.emit(Event{Kind: EventFirstFrame, Width: w, Height: h})
	}
	return true
}

// markers highlights the selected corner while calibrating.
func (d *Detector) markers(corners [params.NumCorners]params.Point) []imaging.Marker {
	selected := -1
	if d.calib.State() == calibration.Calibrating {
		selected = d.calib.Selected()
	}
	out := make([]imaging.Marker, len(corners))
	for i, c := range corners {
		out[i] = imaging.Marker{X: c.X, Y: c.Y, Label: strconv.Itoa(i), Selected: i == selected}
	}
	return out
}

func (d *Detector) emit(e Event) {
	d.mu.Lock()
	ls := make([]Listener, len(d.listeners))
	copy(ls, d.listeners)
	d.mu.Unlock()

	d.logger.Debug("lifecycle event", "event", e.Kind.String())
	for _, l := range ls {
		l(e)
	}
}

// View returns the latest published view, or nil before the first.
func (d *Detector) View() *View {
	return d.view.Load()
}

// Shadows returns the shadows of the latest view.
func (d *Detector) Shadows() []detection.Shadow {
	if v := d.view.Load(); v != nil {
		return v.Shadows
	}
	return nil
}

// FrameSize returns the negotiated frame size, or 0×0 before init.
func (d *Detector) FrameSize() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

// Devices lists the driver's devices.
func (d *Detector) Devices() ([]camera.DeviceDescriptor, error) {
	return d.driver.Devices()
}

// Mapper returns the pixel→world mapping.
func (d *Detector) Mapper() viewport.Mapper {
	return d.opts.Mapper
}

// Status returns a snapshot of the detector state.
func (d *Detector) Status() Status {
	d.mu.Lock()
	st := Status{
		Initialized: d.initDone,
		FirstFrame:  d.firstFired,
		Width:       d.width,
		Height:      d.height,
		Sequence:    d.sequence,
	}
	if d.stream != nil {
		st.Device = d.device.Name
		st.DeviceKind = d.device.Kind.String()
		st.Playing = d.stream.Playing()
	}
	d.mu.Unlock()

	if v := d.view.Load(); v != nil {
		st.Shadows = len(v.Shadows)
	}
	st.HasTransform = d.rectifier.Valid()
	st.Calibration = d.calib.State().String()
	st.Selected = d.calib.Selected()
	st.Dragging = d.calib.Dragging()
	return st
}
