// Package rectify computes the perspective transform defined by four
// calibration corners and resamples camera frames through it.
//
// Corner i of the calibration maps to corner i of the output rectangle in
// the fixed order (0,0), (w,0), (0,h), (w,h): top-left, top-right,
// bottom-left, bottom-right.
package rectify

import (
	"errors"
	"math"

	"github.com/ironsheep/shadow-detector/internal/params"
)

// ErrDegenerateCalibration is returned when the corners cannot define a
// perspective transform: three of them are collinear, or the linear system
// is singular.
var ErrDegenerateCalibration = errors.New("degenerate calibration")

// collinearTolerance is the smallest triangle area, relative to the squared
// extent of the corners, that still counts as a real triangle.
const collinearTolerance = 1e-6

// Homography is a row-major 3x3 projective matrix.
type Homography [9]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps (x, y) through h. Points on the line at infinity map to +Inf.
func (h Homography) Apply(x, y float64) (float64, float64) {
	w := h[6]*x + h[7]*y + h[8]
	if w == 0 {
		return math.Inf(1), math.Inf(1)
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w
}

// Inverse returns the inverse transform.
func (h Homography) Inverse() (Homography, error) {
	a, b, c := h[0], h[1], h[2]
	d, e, f := h[3], h[4], h[5]
	g, k, l := h[6], h[7], h[8]

	co0 := e*l - f*k
	co1 := f*g - d*l
	co2 := d*k - e*g
	det := a*co0 + b*co1 + c*co2
	if math.Abs(det) < 1e-12 || math.IsNaN(det) {
		return Homography{}, ErrDegenerateCalibration
	}

	inv := Homography{
		co0, c*k - b*l, b*f - c*e,
		co1, a*l - c*g, c*d - a*f,
		co2, b*g - a*k, a*e - b*d,
	}
	for i := range inv {
		inv[i] /= det
	}
	return inv, nil
}

// Solve returns the homography mapping src[i] onto dst[i].
//
// The eight unknowns (h22 fixed at 1) are found by Gaussian elimination with
// partial pivoting on the standard 8x8 system. Source quads with any three
// collinear corners are rejected before solving.
func Solve(src, dst [params.NumCorners]params.Point) (Homography, error) {
	if collinear(src) || collinear(dst) {
		return Homography{}, ErrDegenerateCalibration
	}

	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -v * x, -v * y, v}
	}

	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return Homography{}, ErrDegenerateCalibration
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := 0; row < 8; row++ {
			if row == col {
				continue
			}
			factor := a[row][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for k := col; k < 9; k++ {
				a[row][k] -= factor * a[col][k]
			}
		}
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h[i] = a[i][8] / a[i][i]
		if math.IsNaN(h[i]) || math.IsInf(h[i], 0) {
			return Homography{}, ErrDegenerateCalibration
		}
	}
	h[8] = 1
	return h, nil
}

// collinear reports whether any three of the points are (nearly) on a line.
func collinear(p [params.NumCorners]params.Point) bool {
	minX, maxX := p[0].X, p[0].X
	minY, maxY := p[0].Y, p[0].Y
	for _, q := range p[1:] {
		minX, maxX = math.Min(minX, q.X), math.Max(maxX, q.X)
		minY, maxY = math.Min(minY, q.Y), math.Max(maxY, q.Y)
	}
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return true
	}
	tol := collinearTolerance * span * span

	triples := [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}}
	for _, t := range triples {
		a, b, c := p[t[0]], p[t[1]], p[t[2]]
		cross := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
		if math.Abs(cross) <= tol {
			return true
		}
	}
	return false
}
