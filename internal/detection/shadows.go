package detection

import "image"

// Shadow is one detected shadow region as a closed polygon in target space.
type Shadow struct {
	// Points are the polygon vertices after simplification and mapping.
	Points []Vec2 `json:"points"`

	// Area is the region's contour area in square pixels.
	Area float64 `json:"area"`
}

// Options controls which contours become shadows and how they are simplified.
type Options struct {
	// MinArea excludes contours whose area is less than or equal to it.
	MinArea float64

	// Simplify enables Douglas–Peucker reduction.
	Simplify bool

	// EpsilonFactor scales the contour perimeter into the simplification
	// tolerance.
	EpsilonFactor float64
}

// MapFunc maps a pixel coordinate of a frameW×frameH image into target space.
type MapFunc func(p Vec2, frameW, frameH int) Vec2

// ExtractShadows turns a binary mask into shadow polygons.
//
// Each outer contour of the mask is kept only if its area exceeds
// opts.MinArea. Kept contours are optionally simplified with tolerance
// opts.EpsilonFactor × perimeter, then every vertex is passed through
// mapFn (nil leaves pixel coordinates unchanged).
//
// Shadows are returned in contour discovery order.
func ExtractShadows(mask *image.Gray, opts Options, mapFn MapFunc) []Shadow {
	w, h := mask.Bounds().Dx(), mask.Bounds().Dy()
	shadows := make([]Shadow, 0)

	for _, c := range FindContours(mask) {
		pts := c.ToVec2()
		area := PolygonArea(pts)
		if area <= opts.MinArea {
			continue
		}

		if opts.Simplify {
			eps := opts.EpsilonFactor * ArcLength(pts, true)
			pts = ApproxPolyDP(pts, eps, true)
		}

		if mapFn != nil {
			for i := range pts {
				pts[i] = mapFn(pts[i], w, h)
			}
		}

		shadows = append(shadows, Shadow{Points: pts, Area: area})
	}

	return shadows
}
