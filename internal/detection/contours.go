package detection

import (
	"image"
)

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// Contour is the outer boundary of one connected foreground region, as an
// ordered ring of pixel coordinates (the closing edge back to the first point
// is implied).
type Contour []Point

// 8-neighborhood in clockwise order (image coordinates, Y down):
// E, SE, S, SW, W, NW, N, NE.
var (
	ndx = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	ndy = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

// FindContours extracts the outer contour of every 8-connected foreground
// region of mask. Any non-zero pixel is foreground.
//
// Parameters:
//   - mask: Binary mask; typically the output of the segmenter.
//
// Returns one Contour per region, in raster order of each region's first
// (top-most, then left-most) pixel.
//
// # Algorithm
//
//  1. Labelling: stack-based flood fill assigns a label to each region
//  2. Tracing: Moore-neighbour tracing walks each region's boundary clockwise
//     starting from its first pixel, stopping when the walk would repeat its
//     first step
//  3. Compression: points in the middle of a straight run that continues in
//     the same direction are dropped, leaving only direction changes
//
// Holes are not reported. A single isolated pixel yields a one-point contour.
func FindContours(mask *image.Gray) []Contour {
	b := mask.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	fg := make([]bool, width*height)
	for y := 0; y < height; y++ {
		row := mask.Pix[mask.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < width; x++ {
			fg[y*width+x] = row[x] != 0
		}
	}

	labels := make([]int, width*height)
	contours := make([]Contour, 0)
	next := 0

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if !fg[i] || labels[i] != 0 {
				continue
			}
			next++
			floodFill(fg, labels, x, y, width, height, next)
			contours = append(contours, traceContour(labels, width, height, next, Point{x, y}))
		}
	}

	return contours
}

// floodFill labels the 8-connected region containing (startX, startY).
//
// Uses a stack-based approach (not recursive) to avoid stack overflow
// on large regions.
func floodFill(fg []bool, labels []int, startX, startY, width, height, label int) {
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		i := p.Y*width + p.X
		if labels[i] != 0 || !fg[i] {
			continue
		}
		labels[i] = label

		// 8-connected neighbors
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
}

// traceContour walks the boundary of the region with the given label.
// start must be the region's first pixel in raster order, so its west
// neighbour is background.
func traceContour(labels []int, width, height, label int, start Point) Contour {
	isLabel := func(x, y int) bool {
		if x < 0 || y < 0 || x >= width || y >= height {
			return false
		}
		return labels[y*width+x] == label
	}

	// nextPixel scans clockwise around c starting after backtrack b.
	// It returns the first region pixel found and the background position
	// examined just before it, which becomes the next backtrack.
	nextPixel := func(c, b Point) (Point, Point, bool) {
		dir := 0
		for i := 0; i < 8; i++ {
			if c.X+ndx[i] == b.X && c.Y+ndy[i] == b.Y {
				dir = i
				break
			}
		}
		prev := b
		for k := 1; k <= 8; k++ {
			i := (dir + k) % 8
			t := Point{c.X + ndx[i], c.Y + ndy[i]}
			if isLabel(t.X, t.Y) {
				return t, prev, true
			}
			prev = t
		}
		return Point{}, Point{}, false
	}

	pts := make(Contour, 0, 64)
	add := func(p Point) {
		n := len(pts)
		if n > 0 && pts[n-1] == p {
			return
		}
		if n >= 2 && continuesRun(pts[n-2], pts[n-1], p) {
			pts = pts[:n-1]
		}
		pts = append(pts, p)
	}

	add(start)
	n, nb, ok := nextPixel(start, Point{start.X - 1, start.Y})
	if !ok {
		return pts
	}
	second := n

	maxSteps := width*height*4 + 8
	for steps := 0; steps < maxSteps; steps++ {
		c := n
		n, nb, _ = nextPixel(c, nb)
		if c == start && n == second {
			break
		}
		add(c)
	}

	// Close the ring: drop trailing points that lie inside the run back to start
	for len(pts) >= 3 && continuesRun(pts[len(pts)-2], pts[len(pts)-1], pts[0]) {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// continuesRun reports whether a→b→c is a straight run in one direction.
func continuesRun(a, b, c Point) bool {
	v1x, v1y := b.X-a.X, b.Y-a.Y
	v2x, v2y := c.X-b.X, c.Y-b.Y
	return v1x*v2y-v1y*v2x == 0 && v1x*v2x+v1y*v2y > 0
}
