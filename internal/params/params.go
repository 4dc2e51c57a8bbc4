// Package params holds the tunable shadow-detection parameters and the four
// perspective calibration corners.
//
// A Store keeps one DetectionParameters value and four Points behind a lock,
// loads and saves them through a prefs.Prefs backend, and supports a staged
// edit session: BeginEdit snapshots the current state, Cancel restores it and
// Commit persists the working state.
//
// Every value entering the store is normalised to its valid range. Blur kernel
// sizes are forced odd: an even size v becomes clamp(v-1, 1, 21).
package params

import (
	"errors"
	"fmt"
	"math"
)

// Valid ranges.
const (
	MinColorShift = -255
	MaxColorShift = 255

	MinThreshold = 0
	MaxThreshold = 255

	MinBlurKernelSize = 1
	MaxBlurKernelSize = 21

	MinEpsilonFactor = 0.001
	MaxEpsilonFactor = 0.1

	MinContourArea = 0
	MaxContourArea = 100000
)

// Storage keys. Field names used by Get and Set are the same strings.
const (
	KeyColorShiftR      = "r"
	KeyColorShiftG      = "g"
	KeyColorShiftB      = "b"
	KeyThreshold        = "threshold"
	KeyEpsilonFactor    = "epsilon"
	KeyBlurKernelSize   = "gaussian"
	KeyMinContourArea   = "contourMinArea"
	KeySimplifyContours = "useApprox"
)

// Fields lists the parameter field names in display order.
var Fields = []string{
	KeyColorShiftR,
	KeyColorShiftG,
	KeyColorShiftB,
	KeyThreshold,
	KeyEpsilonFactor,
	KeyBlurKernelSize,
	KeyMinContourArea,
	KeySimplifyContours,
}

var (
	// ErrInvalidParameter is returned for unknown fields, values of the wrong
	// type and non-finite numbers.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoEditSession is returned by Cancel when BeginEdit was never called.
	ErrNoEditSession = errors.New("no edit session open")
)

// DetectionParameters configures the segmenter and contour extractor.
type DetectionParameters struct {
	ColorShiftR      int     `json:"r"`
	ColorShiftG      int     `json:"g"`
	ColorShiftB      int     `json:"b"`
	Threshold        int     `json:"threshold"`
	BlurKernelSize   int     `json:"gaussian"`
	EpsilonFactor    float64 `json:"epsilon"`
	MinContourArea   int     `json:"contourMinArea"`
	SimplifyContours bool    `json:"useApprox"`
}

// Defaults returns the parameters a fresh detector starts with.
func Defaults() DetectionParameters {
	return DetectionParameters{
		Threshold:        20,
		BlurKernelSize:   1,
		EpsilonFactor:    MinEpsilonFactor,
		SimplifyContours: true,
	}
}

// Normalize clamps every field into its valid range and forces the blur
// kernel size odd. A NaN epsilon becomes the minimum.
func (p DetectionParameters) Normalize() DetectionParameters {
	p.ColorShiftR = clampInt(p.ColorShiftR, MinColorShift, MaxColorShift)
	p.ColorShiftG = clampInt(p.ColorShiftG, MinColorShift, MaxColorShift)
	p.ColorShiftB = clampInt(p.ColorShiftB, MinColorShift, MaxColorShift)
	p.Threshold = clampInt(p.Threshold, MinThreshold, MaxThreshold)
	p.BlurKernelSize = NormalizeBlurKernelSize(p.BlurKernelSize)
	p.MinContourArea = clampInt(p.MinContourArea, MinContourArea, MaxContourArea)
	if math.IsNaN(p.EpsilonFactor) {
		p.EpsilonFactor = MinEpsilonFactor
	}
	p.EpsilonFactor = math.Max(MinEpsilonFactor, math.Min(MaxEpsilonFactor, p.EpsilonFactor))
	return p
}

// NormalizeBlurKernelSize returns the odd kernel size used for v.
// Even values step down by one before clamping, so 2 → 1 and 22 → 21.
func NormalizeBlurKernelSize(v int) int {
	if v%2 == 0 {
		return clampInt(v-1, MinBlurKernelSize, MaxBlurKernelSize)
	}
	return clampInt(v, MinBlurKernelSize, MaxBlurKernelSize)
}

// Point is a calibration corner in camera pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Corner indices in transform order.
const (
	TopLeft = iota
	TopRight
	BottomLeft
	BottomRight

	NumCorners
)

// FrameCorners returns the identity calibration for a w×h frame.
func FrameCorners(w, h int) [NumCorners]Point {
	fw, fh := float64(w), float64(h)
	return [NumCorners]Point{
		{0, 0},
		{fw, 0},
		{0, fh},
		{fw, fh},
	}
}

func pointKeys(i int) (string, string) {
	return fmt.Sprintf("p%dx", i), fmt.Sprintf("p%dy", i)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
