package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ironsheep/shadow-detector/internal/imaging"
)

// DefaultFPS is used when a request does not name a frame rate.
const DefaultFPS = 30

// DirDriver replays image files as camera devices.
//
// Each subdirectory of Root containing images is a device named after the
// directory. If Root itself holds images and has no such subdirectories, it
// is the only device. Name suffixes set descriptor fields: "front" marks a
// front-facing device, "depth" ColorAndDepth, "tele" Telephoto and
// "ultrawide" UltraWideAngle.
type DirDriver struct {
	Root string

	cache  *imaging.ImageCache
	logger *slog.Logger
}

// NewDirDriver creates a driver for root. Decoded files are kept in cache,
// which may be shared; nil creates a private cache.
func NewDirDriver(root string, cache *imaging.ImageCache, logger *slog.Logger) *DirDriver {
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DirDriver{Root: root, cache: cache, logger: logger}
}

// Devices lists the device directories under Root.
func (d *DirDriver) Devices() ([]DeviceDescriptor, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("read device root: %w", err)
	}

	names := make([]string, 0)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := imaging.ListFrames(filepath.Join(d.Root, e.Name()))
		if err != nil || len(files) == 0 {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		files, _ := imaging.ListFrames(d.Root)
		if len(files) > 0 {
			return []DeviceDescriptor{describe(filepath.Base(d.Root))}, nil
		}
		return nil, nil
	}

	devs := make([]DeviceDescriptor, len(names))
	for i, n := range names {
		devs[i] = describe(n)
	}
	return devs, nil
}

func describe(name string) DeviceDescriptor {
	lower := strings.ToLower(name)
	dev := DeviceDescriptor{Name: name, Kind: WideAngle}
	dev.FrontFacing = strings.HasSuffix(lower, "front")
	switch {
	case strings.Contains(lower, "depth"):
		dev.Kind = ColorAndDepth
	case strings.Contains(lower, "ultrawide"):
		dev.Kind = UltraWideAngle
	case strings.Contains(lower, "tele"):
		dev.Kind = Telephoto
	}
	return dev
}

// OpenStream prepares a stream over the device directory's images.
func (d *DirDriver) OpenStream(dev DeviceDescriptor, req Request) (Stream, error) {
	dir := filepath.Join(d.Root, dev.Name)
	if filepath.Base(d.Root) == dev.Name {
		if _, err := os.Stat(dir); err != nil {
			dir = d.Root
		}
	}

	files, err := imaging.ListFrames(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s has no frames", ErrDeviceNotFound, dev.Name)
	}

	if req.FPS <= 0 {
		req.FPS = DefaultFPS
	}
	return &DirStream{
		name:   dev.Name,
		files:  files,
		req:    req,
		cache:  d.cache,
		logger: d.logger.With("device", dev.Name),
	}, nil
}

// DirStream publishes a directory's images in name order at the requested
// frame rate, looping forever.
type DirStream struct {
	feed
	name   string
	files  []string
	req    Request
	cache  *imaging.ImageCache
	logger *slog.Logger

	mu     sync.Mutex
	frames []*image.RGBA
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *DirStream) Name() string { return s.name }

func (s *DirStream) Playing() bool { return s.playing.Load() }

func (s *DirStream) Size() (int, int) { return s.size() }

func (s *DirStream) Poll(dst *image.RGBA) bool { return s.poll(dst) }

// Start decodes the frames on first use and begins publishing.
// All frames share the size of the request, or of the first image when the
// request does not give one.
func (s *DirStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}
	if s.frames == nil {
		if err := s.loadFrames(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.playing.Store(true)
	go s.loop(ctx, s.done)
	return nil
}

func (s *DirStream) loadFrames() error {
	w, h := s.req.Width, s.req.Height
	frames := make([]*image.RGBA, 0, len(s.files))
	for _, path := range s.files {
		f, err := imaging.LoadFrame(s.cache, path, w, h)
		if err != nil {
			s.logger.Warn("skipping unreadable frame", "path", path, "error", err)
			continue
		}
		if w <= 0 || h <= 0 {
			w, h = f.Bounds().Dx(), f.Bounds().Dy()
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return fmt.Errorf("%w: no readable frames for %s", ErrDeviceNotFound, s.name)
	}
	s.frames = frames
	s.logger.Debug("frames loaded", "count", len(frames), "width", w, "height", h)
	return nil
}

func (s *DirStream) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := time.Second / time.Duration(s.req.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	i := 0
	s.publish(s.frames[i])
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i = (i + 1) % len(s.frames)
			s.publish(s.frames[i])
		}
	}
}

// Stop halts publishing and waits for the producer to exit.
func (s *DirStream) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	s.playing.Store(false)
	if cancel != nil {
		cancel()
		<-done
	}
}
