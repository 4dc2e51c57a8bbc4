// Package camera abstracts frame acquisition: device enumeration, device
// selection, and streams that deliver fixed-size RGBA frames without
// blocking the consumer.
//
// Two drivers are provided. DirDriver replays image files from a directory
// tree, one subdirectory per device. MemoryDriver delivers frames pushed
// by the program, for tests and embedding.
package camera

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
)

// ErrDeviceNotFound is returned when no device can be opened: the driver
// reports no devices at all, or the chosen device disappeared.
var ErrDeviceNotFound = errors.New("camera device does not exist")

// DeviceKind classifies the lens or sensor of a device.
type DeviceKind int

const (
	WideAngle DeviceKind = iota
	Telephoto
	ColorAndDepth
	UltraWideAngle
)

func (k DeviceKind) String() string {
	switch k {
	case WideAngle:
		return "wide_angle"
	case Telephoto:
		return "telephoto"
	case ColorAndDepth:
		return "color_and_depth"
	case UltraWideAngle:
		return "ultra_wide_angle"
	default:
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
}

// MarshalText renders the kind by name in JSON output.
func (k DeviceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name written by MarshalText.
func (k *DeviceKind) UnmarshalText(text []byte) error {
	for _, c := range []DeviceKind{WideAngle, Telephoto, ColorAndDepth, UltraWideAngle} {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown device kind %q", text)
}

// DeviceDescriptor describes one available device.
type DeviceDescriptor struct {
	Name        string     `json:"name"`
	FrontFacing bool       `json:"front_facing"`
	Kind        DeviceKind `json:"kind"`
}

// Request is the desired stream format. Drivers may deliver a different
// size; the negotiated size is known once the first frame arrives.
type Request struct {
	Width  int
	Height int
	FPS    int
}

// Driver enumerates devices and opens streams on them.
type Driver interface {
	Devices() ([]DeviceDescriptor, error)
	OpenStream(dev DeviceDescriptor, req Request) (Stream, error)
}

// Stream delivers frames from one device.
type Stream interface {
	// Name is the device name.
	Name() string

	Start() error
	Stop()
	Playing() bool

	// Size returns the negotiated frame size, or 0×0 before the first frame.
	Size() (width, height int)

	// Poll reports whether a frame newer than the one last polled is
	// available. When it is and dst is non-nil, the frame is copied into dst,
	// which must have the negotiated size. Poll never blocks.
	Poll(dst *image.RGBA) bool
}

// Select picks the device described by selector from devs.
//
// A selector that parses as an integer is an index into devs; any other
// non-empty selector must equal a device name. When the selector is empty or
// matches nothing, the first device that is not ColorAndDepth is used, and
// failing that the first device. An empty device list yields
// ErrDeviceNotFound.
//
// matched reports whether the selector itself chose the device.
func Select(devs []DeviceDescriptor, selector string) (dev DeviceDescriptor, matched bool, err error) {
	if selector != "" {
		if idx, convErr := strconv.Atoi(selector); convErr == nil {
			if idx >= 0 && idx < len(devs) {
				return devs[idx], true, nil
			}
		} else {
			for _, d := range devs {
				if d.Name == selector {
					return d, true, nil
				}
			}
		}
	}

	for _, d := range devs {
		if d.Kind != ColorAndDepth {
			return d, false, nil
		}
	}
	if len(devs) > 0 {
		return devs[0], false, nil
	}
	return DeviceDescriptor{}, false, ErrDeviceNotFound
}

// Open selects a device from driver and opens a stream on it.
// The stream is not started. A nil logger discards output.
func Open(driver Driver, selector string, req Request, logger *slog.Logger) (Stream, DeviceDescriptor, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	devs, err := driver.Devices()
	if err != nil {
		return nil, DeviceDescriptor{}, fmt.Errorf("list camera devices: %w", err)
	}

	dev, matched, err := Select(devs, selector)
	if selector != "" && !matched {
		logger.Warn("cannot find camera device", "selector", selector, "devices", len(devs))
	}
	if err != nil {
		return nil, DeviceDescriptor{}, err
	}

	stream, err := driver.OpenStream(dev, req)
	if err != nil {
		return nil, dev, fmt.Errorf("open camera %q: %w", dev.Name, err)
	}

	logger.Info("camera opened",
		"name", dev.Name,
		"kind", dev.Kind.String(),
		"front_facing", dev.FrontFacing,
		"requested_width", req.Width,
		"requested_height", req.Height,
		"requested_fps", req.FPS)
	return stream, dev, nil
}
