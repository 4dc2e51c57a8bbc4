// Package segment classifies the pixels of a rectified frame as shadow or
// not shadow.
//
// # Algorithm
//
//  1. Shift every color channel by a signed constant (ClampAdd of the positive
//     parts, then ClampSubtract of the negated negative parts); values
//     saturate at 0 and 255.
//  2. Split the shifted image into R, G and B planes for display.
//  3. Convert to grayscale with Rec. 601 luma weights.
//  4. Gaussian blur with an odd square kernel.
//  5. Binary threshold: intensity below the threshold is shadow (255),
//     intensity at or above it is background (0).
package segment

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/adjust"
)

// Shift is a signed per-channel color offset.
type Shift struct {
	R, G, B int
}

// Negate returns the shift with every component negated.
func (s Shift) Negate() Shift {
	return Shift{-s.R, -s.G, -s.B}
}

// saturate converts v to an 8-bit channel value, clamping to [0,255].
func saturate(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ClampAdd adds a constant color to every pixel. The constant is first
// stored as an 8-bit color, so negative components contribute nothing.
// Alpha is unchanged.
func ClampAdd(src image.Image, s Shift) *image.RGBA {
	r, g, b := int(saturate(s.R)), int(saturate(s.G)), int(saturate(s.B))
	return adjust.Apply(src, func(c color.RGBA) color.RGBA {
		c.R = saturate(int(c.R) + r)
		c.G = saturate(int(c.G) + g)
		c.B = saturate(int(c.B) + b)
		return c
	})
}

// ClampSubtract subtracts a constant color from every pixel, with the same
// 8-bit treatment of the constant as ClampAdd.
func ClampSubtract(src image.Image, s Shift) *image.RGBA {
	r, g, b := int(saturate(s.R)), int(saturate(s.G)), int(saturate(s.B))
	return adjust.Apply(src, func(c color.RGBA) color.RGBA {
		c.R = saturate(int(c.R) - r)
		c.G = saturate(int(c.G) - g)
		c.B = saturate(int(c.B) - b)
		return c
	})
}

// ApplyShift composes ClampAdd(src, s) with ClampSubtract(·, -s). The net
// effect is a saturating signed shift of each channel by s.
func ApplyShift(src image.Image, s Shift) *image.RGBA {
	return ClampSubtract(ClampAdd(src, s), s.Negate())
}
