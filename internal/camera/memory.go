package camera

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
)

// MemoryDriver serves devices whose frames are pushed by the program.
type MemoryDriver struct {
	mu      sync.Mutex
	devices []DeviceDescriptor
	streams map[string]*MemoryStream
}

// NewMemoryDriver creates a driver listing devs.
func NewMemoryDriver(devs ...DeviceDescriptor) *MemoryDriver {
	return &MemoryDriver{
		devices: devs,
		streams: make(map[string]*MemoryStream),
	}
}

// Devices returns the configured devices.
func (d *MemoryDriver) Devices() ([]DeviceDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeviceDescriptor, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

// OpenStream returns the stream for dev, creating it on first use.
// Opening the same device twice returns the same stream.
func (d *MemoryDriver) OpenStream(dev DeviceDescriptor, req Request) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	found := false
	for _, known := range d.devices {
		if known.Name == dev.Name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, dev.Name)
	}

	s, ok := d.streams[dev.Name]
	if !ok {
		s = &MemoryStream{name: dev.Name, req: req}
		d.streams[dev.Name] = s
	}
	return s, nil
}

// Stream returns the stream opened for name, or nil.
func (d *MemoryDriver) Stream(name string) *MemoryStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[name]
}

// MemoryStream delivers frames handed to Push.
type MemoryStream struct {
	feed
	name string
	req  Request
}

func (s *MemoryStream) Name() string { return s.name }

func (s *MemoryStream) Start() error {
	s.playing.Store(true)
	return nil
}

func (s *MemoryStream) Stop() { s.playing.Store(false) }

func (s *MemoryStream) Playing() bool { return s.playing.Load() }

func (s *MemoryStream) Size() (int, int) { return s.size() }

func (s *MemoryStream) Poll(dst *image.RGBA) bool { return s.poll(dst) }

// Push publishes a copy of img as the newest frame. Frames pushed while the
// stream is stopped are dropped; Push reports whether img was published.
func (s *MemoryStream) Push(img image.Image) bool {
	if !s.playing.Load() {
		return false
	}
	b := img.Bounds()
	frame := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(frame, frame.Bounds(), img, b.Min, draw.Src)
	s.publish(frame)
	return true
}
