package segment

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/channel"
	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/parallel"
)

// Rec. 601 luma weights.
const (
	LumaR = 0.299
	LumaG = 0.587
	LumaB = 0.114
)

// Shadow and background values in a BinaryMask.
const (
	MaskShadow     uint8 = 255
	MaskBackground uint8 = 0
)

// SplitChannels returns the R, G and B planes of img.
func SplitChannels(img image.Image) (r, g, b *image.Gray) {
	return channel.Extract(img, channel.Red),
		channel.Extract(img, channel.Green),
		channel.Extract(img, channel.Blue)
}

// Luma converts img to a single-channel image using Rec. 601 weights,
// rounded to the nearest integer.
func Luma(img image.Image) *image.Gray {
	return channel.Extract(effect.GrayscaleWithWeights(img, LumaR, LumaG, LumaB), channel.Red)
}

// GaussianSigma returns the standard deviation used for a ksize kernel when
// none is given explicitly: 0.3*((ksize-1)/2 - 1) + 0.8.
func GaussianSigma(ksize int) float64 {
	return 0.3*(float64(ksize-1)*0.5-1) + 0.8
}

// GaussianBlur smooths a grayscale image with a separable ksize×ksize
// Gaussian kernel. Borders replicate the edge pixel and results are rounded.
// ksize ≤ 1 returns a copy.
func GaussianBlur(src *image.Gray, ksize int) *image.Gray {
	if ksize <= 1 {
		dst := image.NewGray(src.Bounds())
		copy(dst.Pix, src.Pix)
		return dst
	}

	sigma := GaussianSigma(ksize)
	half := ksize / 2
	k := convolution.NewKernel(ksize, 1)
	for i := 0; i < ksize; i++ {
		x := float64(i - half)
		k.Matrix[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
	}
	norm := k.Normalized()

	opts := &convolution.Options{Bias: 0.5, Wrap: false, KeepAlpha: true}
	out := convolution.Convolve(src, norm, opts)
	out = convolution.Convolve(out, norm.Transposed(), opts)
	return channel.Extract(out, channel.Red)
}

// Threshold classifies each pixel of src: values below level become
// MaskShadow, values at or above it become MaskBackground.
func Threshold(src *image.Gray, level uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	w, h := b.Dx(), b.Dy()

	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			so := src.PixOffset(b.Min.X, b.Min.Y+y)
			do := dst.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < w; x++ {
				if src.Pix[so+x] < level {
					dst.Pix[do+x] = MaskShadow
				} else {
					dst.Pix[do+x] = MaskBackground
				}
			}
		}
	})
	return dst
}

// asRGBA returns img as *image.RGBA without copying when possible.
func asRGBA(img image.Image) *image.RGBA {
	return clone.AsShallowRGBA(img)
}
