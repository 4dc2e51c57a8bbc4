package segment

import (
	"image"
	"sync"

	"github.com/ironsheep/shadow-detector/internal/params"
)

// Result holds every intermediate image of one segmentation pass.
// The images are freshly allocated per pass and never modified afterwards.
type Result struct {
	Composite *image.RGBA // color-shifted frame
	Red       *image.Gray
	Green     *image.Gray
	Blue      *image.Gray
	Gray      *image.Gray
	Blurred   *image.Gray
	Mask      *image.Gray // BinaryMask: MaskShadow / MaskBackground
}

// Segmenter runs the segmentation pipeline and remembers the last mask.
type Segmenter struct {
	// SkipChannels disables the R/G/B split when no one displays it.
	SkipChannels bool

	mu   sync.RWMutex
	last *image.Gray
}

// New creates a Segmenter.
func New() *Segmenter {
	return &Segmenter{}
}

// Segment classifies src under p. p is expected to be normalised; the blur
// kernel size is re-checked so an even value can never reach the filter.
func (s *Segmenter) Segment(src image.Image, p params.DetectionParameters) *Result {
	rgba := asRGBA(src)

	res := &Result{}
	res.Composite = ApplyShift(rgba, Shift{p.ColorShiftR, p.ColorShiftG, p.ColorShiftB})
	if !s.SkipChannels {
		res.Red, res.Green, res.Blue = SplitChannels(res.Composite)
	}
	res.Gray = Luma(res.Composite)
	res.Blurred = GaussianBlur(res.Gray, params.NormalizeBlurKernelSize(p.BlurKernelSize))
	res.Mask = Threshold(res.Blurred, saturate(p.Threshold))

	s.mu.Lock()
	s.last = res.Mask
	s.mu.Unlock()

	return res
}

// LastMask returns the mask of the most recent pass, or nil before the first.
func (s *Segmenter) LastMask() *image.Gray {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
