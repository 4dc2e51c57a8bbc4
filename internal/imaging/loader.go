package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/disintegration/imaging"
)

// frameKey identifies one frame file decoded at one size. A zero size is the
// file's native size.
type frameKey struct {
	path          string
	width, height int
}

// ImageCache holds decoded frame files as origin-0 RGBA images, one entry per
// requested size, so a replayed camera directory is decoded and resized once
// per stream format. Cached images are shared and must not be modified.
//
// ImageCache is safe for concurrent use.
type ImageCache struct {
	mu     sync.RWMutex
	frames map[frameKey]*image.RGBA
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		frames: make(map[frameKey]*image.RGBA),
	}
}

// Load returns the image at path in its native size, decoding it on first use.
// EXIF orientation is applied to JPEG files.
func (c *ImageCache) Load(path string) (image.Image, error) {
	return c.frame(path, 0, 0)
}

// frame returns path at width×height, or at its native size when either is
// zero. The resized entry is built from the cached native entry.
func (c *ImageCache) frame(path string, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		width, height = 0, 0
	}
	key := frameKey{path: path, width: width, height: height}

	c.mu.RLock()
	f, ok := c.frames[key]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	if width == 0 {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("failed to load frame %s: %w", path, err)
		}
		f = toRGBA(img)
	} else {
		native, err := c.frame(path, 0, 0)
		if err != nil {
			return nil, err
		}
		f = native
		if native.Rect.Dx() != width || native.Rect.Dy() != height {
			f = toRGBA(imaging.Resize(native, width, height, imaging.Lanczos))
		}
	}

	c.mu.Lock()
	c.frames[key] = f
	c.mu.Unlock()
	return f, nil
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Len returns the number of distinct files in the cache.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for k := range c.frames {
		if k.width == 0 {
			n++
		}
	}
	return n
}

// Clear drops every cached frame.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.frames = make(map[frameKey]*image.RGBA)
	c.mu.Unlock()
}

// Evict drops path at every size. The next load reads the file again.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	for k := range c.frames {
		if k.path == path {
			delete(c.frames, k)
		}
	}
	c.mu.Unlock()
}
