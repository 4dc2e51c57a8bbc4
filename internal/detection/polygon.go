package detection

import "math"

// Vec2 is a point in continuous (world or pixel) space.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ToVec2 converts a contour to floating-point vertices.
func (c Contour) ToVec2() []Vec2 {
	out := make([]Vec2, len(c))
	for i, p := range c {
		out[i] = Vec2{float64(p.X), float64(p.Y)}
	}
	return out
}

// PolygonArea returns the absolute area enclosed by the closed polygon pts
// (shoelace formula). Fewer than three vertices enclose no area.
func PolygonArea(pts []Vec2) float64 {
	if len(pts) < 3 {
		return 0
	}
	sum := 0.0
	j := len(pts) - 1
	for i := range pts {
		sum += (pts[j].X + pts[i].X) * (pts[j].Y - pts[i].Y)
		j = i
	}
	return math.Abs(sum) / 2
}

// ArcLength returns the length of the polyline through pts, including the
// closing edge when closed is true.
func ArcLength(pts []Vec2, closed bool) float64 {
	if len(pts) < 2 {
		return 0
	}
	length := 0.0
	for i := 1; i < len(pts); i++ {
		length += math.Hypot(pts[i].X-pts[i-1].X, pts[i].Y-pts[i-1].Y)
	}
	if closed {
		last := pts[len(pts)-1]
		length += math.Hypot(pts[0].X-last.X, pts[0].Y-last.Y)
	}
	return length
}

// ApproxPolyDP simplifies a polyline with the Douglas–Peucker algorithm:
// vertices closer than epsilon to the chord they would be replaced by are
// removed. Larger epsilon yields fewer vertices.
//
// For a closed polygon the ring is split at vertex 0 and at the vertex
// farthest from it; both halves are simplified as open chains and both split
// vertices are always kept. Re-applying the same epsilon to the output
// returns it unchanged.
func ApproxPolyDP(pts []Vec2, epsilon float64, closed bool) []Vec2 {
	n := len(pts)
	if n < 3 || epsilon <= 0 {
		out := make([]Vec2, n)
		copy(out, pts)
		return out
	}

	keep := make([]bool, n+1)

	if !closed {
		keep[0], keep[n-1] = true, true
		simplifyRange(pts, 0, n-1, epsilon, keep)
		return collect(pts, keep[:n])
	}

	far, best := 0, -1.0
	for i := 1; i < n; i++ {
		d := math.Hypot(pts[i].X-pts[0].X, pts[i].Y-pts[0].Y)
		if d > best {
			far, best = i, d
		}
	}

	// Index n stands for vertex 0 closing the ring.
	ring := append(pts[:n:n], pts[0])
	keep[0], keep[far] = true, true
	simplifyRange(ring, 0, far, epsilon, keep)
	simplifyRange(ring, far, n, epsilon, keep)
	return collect(pts, keep[:n])
}

// simplifyRange marks the vertices strictly between first and last that
// survive simplification.
func simplifyRange(pts []Vec2, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}
	idx, dmax := -1, 0.0
	for i := first + 1; i < last; i++ {
		d := segmentDistance(pts[i], pts[first], pts[last])
		if d > dmax {
			idx, dmax = i, d
		}
	}
	if idx < 0 || dmax <= epsilon {
		return
	}
	keep[idx] = true
	simplifyRange(pts, first, idx, epsilon, keep)
	simplifyRange(pts, idx, last, epsilon, keep)
}

func collect(pts []Vec2, keep []bool) []Vec2 {
	out := make([]Vec2, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

// segmentDistance is the distance from p to the segment a–b.
func segmentDistance(p, a, b Vec2) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
