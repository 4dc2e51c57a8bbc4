package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
)

// Marker is one calibration corner drawn on the raw frame.
type Marker struct {
	X, Y     float64
	Label    string
	Selected bool
}

// MarkerStyle configures DrawMarkers.
type MarkerStyle struct {
	Radius        int
	Color         color.RGBA
	SelectedColor color.RGBA
}

// DefaultMarkerStyle draws green markers with the selected one in red.
func DefaultMarkerStyle() MarkerStyle {
	return MarkerStyle{
		Radius:        6,
		Color:         color.RGBA{0, 255, 0, 255},
		SelectedColor: color.RGBA{255, 0, 0, 255},
	}
}

// ParseColor parses a "#RRGGBB" or "#RGB" color string into an opaque color.
func ParseColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] != '#' {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// DrawMarkers returns a copy of img with a filled circle and label for each
// marker. Markers partly outside the image are clipped.
func DrawMarkers(img image.Image, markers []Marker, style MarkerStyle) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	if style.Radius <= 0 {
		style.Radius = DefaultMarkerStyle().Radius
	}

	labelColor := color.RGBA{255, 255, 255, 255}
	bgColor := color.RGBA{0, 0, 0, 180}

	for _, m := range markers {
		c := style.Color
		if m.Selected {
			c = style.SelectedColor
		}
		cx := bounds.Min.X + int(m.X+0.5)
		cy := bounds.Min.Y + int(m.Y+0.5)
		fillCircle(result, cx, cy, style.Radius, c)
		if m.Label != "" {
			drawLabel(result, cx+style.Radius+2, cy-3, m.Label, labelColor, bgColor)
		}
	}
	return result
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	bounds := img.Bounds()
	r2 := r * r
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			px, py := cx+dx, cy+dy
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				img.SetRGBA(px, py, c)
			}
		}
	}
}

// glyphs is a 3x5 pixel font for digits and separators.
var glyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
	',': {"000", "000", "000", "010", "010"},
	'-': {"000", "000", "111", "000", "000"},
}

// drawLabel draws text on a dark box with its top-left corner at (x, y).
// Characters without a glyph leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	bounds := img.Bounds()
	const charWidth, labelHeight = 4, 7
	labelWidth := len(text) * charWidth

	set := func(px, py int, c color.RGBA) {
		if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
			img.SetRGBA(px, py, c)
		}
	}

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			set(x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		for row, line := range glyphs[ch] {
			for col, pixel := range line {
				if pixel == '1' {
					set(cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
