// Package viewport converts between camera pixel space, screen space and
// world space.
//
// Pixel space has its origin at the top-left of the frame with Y down.
// Screen space has its origin at the bottom-left with Y up. World space is
// the view of an orthographic camera centered on (CenterX, CenterY) whose
// half-height is OrthoSize.
package viewport

import (
	"math"

	"github.com/ironsheep/shadow-detector/internal/detection"
	"github.com/ironsheep/shadow-detector/internal/params"
)

// Mapper holds the screen size and camera placement.
type Mapper struct {
	ScreenW float64
	ScreenH float64

	CenterX   float64
	CenterY   float64
	OrthoSize float64 // ≤ 0 maps to screen coordinates instead of world
}

// PixelToScreen scales a frame pixel onto the screen and flips Y.
func (m Mapper) PixelToScreen(p detection.Vec2, frameW, frameH int) detection.Vec2 {
	if frameW <= 0 || frameH <= 0 {
		return p
	}
	return detection.Vec2{
		X: p.X * m.ScreenW / float64(frameW),
		Y: m.ScreenH - p.Y*m.ScreenH/float64(frameH),
	}
}

// ScreenToWorld projects a screen position through the orthographic camera.
func (m Mapper) ScreenToWorld(s detection.Vec2) detection.Vec2 {
	if m.OrthoSize <= 0 || m.ScreenW <= 0 || m.ScreenH <= 0 {
		return s
	}
	aspect := m.ScreenW / m.ScreenH
	return detection.Vec2{
		X: m.CenterX + (s.X/m.ScreenW*2-1)*m.OrthoSize*aspect,
		Y: m.CenterY + (s.Y/m.ScreenH*2-1)*m.OrthoSize,
	}
}

// Map converts a frame pixel into world space. Its signature matches
// detection.MapFunc.
func (m Mapper) Map(p detection.Vec2, frameW, frameH int) detection.Vec2 {
	return m.ScreenToWorld(m.PixelToScreen(p, frameW, frameH))
}

// ScreenToPixel converts a pointer position in screen space to frame pixel
// space, clamped to [0,frameW]×[0,frameH].
func (m Mapper) ScreenToPixel(s detection.Vec2, frameW, frameH int) params.Point {
	if m.ScreenW <= 0 || m.ScreenH <= 0 || frameW <= 0 || frameH <= 0 {
		return params.Point{}
	}
	fw, fh := float64(frameW), float64(frameH)
	x := s.X / (m.ScreenW / fw)
	y := fh - s.Y/(m.ScreenH/fh)
	return params.Point{
		X: math.Max(0, math.Min(fw, x)),
		Y: math.Max(0, math.Min(fh, y)),
	}
}
