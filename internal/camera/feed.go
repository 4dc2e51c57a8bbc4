package camera

import (
	"image"
	"sync/atomic"
	"time"
)

// FrameSnapshot is one published frame. The image is never modified after
// publication.
type FrameSnapshot struct {
	Image      *image.RGBA
	CapturedAt time.Time
	Sequence   uint64
}

// feed is the latest-frame slot shared by a producer goroutine and the
// polling consumer.
type feed struct {
	playing  atomic.Bool
	latest   atomic.Pointer[FrameSnapshot]
	sequence atomic.Uint64

	// seen is the last sequence handed to the consumer. Only Poll touches it.
	seen atomic.Uint64
}

func (f *feed) publish(img *image.RGBA) uint64 {
	seq := f.sequence.Add(1)
	f.latest.Store(&FrameSnapshot{Image: img, CapturedAt: time.Now(), Sequence: seq})
	return seq
}

func (f *feed) size() (int, int) {
	snap := f.latest.Load()
	if snap == nil || snap.Image == nil {
		return 0, 0
	}
	b := snap.Image.Bounds()
	return b.Dx(), b.Dy()
}

func (f *feed) poll(dst *image.RGBA) bool {
	if !f.playing.Load() {
		return false
	}
	snap := f.latest.Load()
	if snap == nil || snap.Sequence == f.seen.Load() {
		return false
	}
	f.seen.Store(snap.Sequence)
	if dst != nil {
		copyFrame(dst, snap.Image)
	}
	return true
}

// copyFrame copies src into dst row by row over their common area.
func copyFrame(dst, src *image.RGBA) {
	r := dst.Bounds().Intersect(src.Bounds().Sub(src.Bounds().Min).Add(dst.Bounds().Min))
	w := r.Dx() * 4
	for y := 0; y < r.Dy(); y++ {
		do := dst.PixOffset(r.Min.X, r.Min.Y+y)
		so := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		copy(dst.Pix[do:do+w], src.Pix[so:so+w])
	}
}
