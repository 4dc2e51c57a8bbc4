package rectify

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/shadow-detector/internal/params"
)

const tolerance = 1e-6

func quad(pts ...float64) [params.NumCorners]params.Point {
	var q [params.NumCorners]params.Point
	for i := range q {
		q[i] = params.Point{X: pts[2*i], Y: pts[2*i+1]}
	}
	return q
}

func TestSolve_MapsCornersToOutputRectangle(t *testing.T) {
	tests := []struct {
		name    string
		corners [params.NumCorners]params.Point
		w, h    int
	}{
		{"identity", quad(0, 0, 640, 0, 0, 360, 640, 360), 640, 360},
		{"inset", quad(50, 40, 590, 30, 60, 330, 600, 340), 640, 360},
		{"keystone", quad(200, 50, 440, 50, 0, 360, 640, 360), 640, 360},
		{"rotated", quad(100, 0, 200, 100, 0, 100, 100, 200), 320, 240},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Solve(tt.corners, params.FrameCorners(tt.w, tt.h))
			if err != nil {
				t.Fatalf("Solve failed: %v", err)
			}
			want := params.FrameCorners(tt.w, tt.h)
			for i, c := range tt.corners {
				x, y := h.Apply(c.X, c.Y)
				if math.Abs(x-want[i].X) > tolerance || math.Abs(y-want[i].Y) > tolerance {
					t.Errorf("corner %d: (%v,%v) → (%v,%v), want (%v,%v)",
						i, c.X, c.Y, x, y, want[i].X, want[i].Y)
				}
			}
		})
	}
}

func TestHomography_Inverse(t *testing.T) {
	h, err := Solve(quad(50, 40, 590, 30, 60, 330, 600, 340), params.FrameCorners(640, 360))
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	inv, err := h.Inverse()
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}

	for _, p := range [][2]float64{{0, 0}, {123, 45}, {640, 360}, {320, 180}} {
		x, y := h.Apply(p[0], p[1])
		bx, by := inv.Apply(x, y)
		if math.Abs(bx-p[0]) > 1e-6 || math.Abs(by-p[1]) > 1e-6 {
			t.Errorf("round trip of %v: got (%v,%v)", p, bx, by)
		}
	}
}

func TestSolve_Degenerate(t *testing.T) {
	tests := []struct {
		name    string
		corners [params.NumCorners]params.Point
	}{
		{"all equal", quad(10, 10, 10, 10, 10, 10, 10, 10)},
		{"all on a line", quad(0, 0, 100, 0, 200, 0, 300, 0)},
		{"three collinear", quad(0, 0, 100, 100, 200, 200, 0, 300)},
		{"two coincide", quad(0, 0, 0, 0, 0, 300, 400, 300)},
		{"NaN", quad(math.NaN(), 0, 640, 0, 0, 360, 640, 360)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Solve(tt.corners, params.FrameCorners(640, 360))
			if !errors.Is(err, ErrDegenerateCalibration) {
				t.Errorf("got %v, want ErrDegenerateCalibration", err)
			}
		})
	}
}

func TestRectifier_RetainsLastValidTransform(t *testing.T) {
	r := New(nil)

	if err := r.Warp(image.NewRGBA(image.Rect(0, 0, 4, 4)), image.NewRGBA(image.Rect(0, 0, 4, 4))); !errors.Is(err, ErrNoTransform) {
		t.Fatalf("Warp before Update: got %v, want ErrNoTransform", err)
	}

	good := quad(10, 10, 90, 10, 10, 90, 90, 90)
	if err := r.Update(good, 100, 100); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	before, _ := r.Transform()

	bad := quad(0, 0, 50, 0, 100, 0, 0, 100)
	if err := r.Update(bad, 100, 100); !errors.Is(err, ErrDegenerateCalibration) {
		t.Fatalf("degenerate Update: got %v", err)
	}
	// Same degenerate input again reports the cached error
	if err := r.Update(bad, 100, 100); !errors.Is(err, ErrDegenerateCalibration) {
		t.Fatalf("repeated degenerate Update: got %v", err)
	}

	after, ok := r.Transform()
	if !ok {
		t.Fatal("transform should still be valid")
	}
	if after != before {
		t.Error("degenerate update replaced the transform")
	}
}

func TestRectifier_DegenerateWithoutPriorTransform(t *testing.T) {
	r := New(nil)
	err := r.Update(quad(0, 0, 1, 1, 2, 2, 3, 3), 10, 10)
	if !errors.Is(err, ErrDegenerateCalibration) {
		t.Fatalf("got %v", err)
	}
	if r.Valid() {
		t.Error("no transform should be valid")
	}
	if err := r.Warp(image.NewRGBA(image.Rect(0, 0, 10, 10)), image.NewRGBA(image.Rect(0, 0, 10, 10))); !errors.Is(err, ErrNoTransform) {
		t.Errorf("Warp: got %v, want ErrNoTransform", err)
	}
}

func TestWarpPerspective_IdentityCopiesFrame(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			src.SetRGBA(x, y, color.RGBA{uint8(x * 10), uint8(y * 20), 7, 255})
		}
	}
	dst := image.NewRGBA(src.Bounds())

	WarpPerspective(src, dst, Identity())

	for i := range src.Pix {
		if src.Pix[i] != dst.Pix[i] {
			t.Fatalf("pixel byte %d: got %d, want %d", i, dst.Pix[i], src.Pix[i])
		}
	}
}

func TestRectifier_CropsMarkedRegion(t *testing.T) {
	// Red square from (20,20) to (80,80) on a blue background
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			c := color.RGBA{0, 0, 255, 255}
			if x >= 20 && x <= 80 && y >= 20 && y <= 80 {
				c = color.RGBA{255, 0, 0, 255}
			}
			src.SetRGBA(x, y, c)
		}
	}

	r := New(nil)
	if err := r.Update(quad(20, 20, 80, 20, 20, 80, 80, 80), 100, 100); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	if err := r.Warp(src, dst); err != nil {
		t.Fatalf("Warp failed: %v", err)
	}

	// The whole output should now be the red square
	for _, p := range []image.Point{{0, 0}, {50, 50}, {99, 0}, {0, 99}, {99, 99}} {
		got := dst.RGBAAt(p.X, p.Y)
		if got.R < 200 || got.B > 50 {
			t.Errorf("pixel %v: got %+v, want red", p, got)
		}
	}
}

func TestWarpPerspective_ReplicatesEdges(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))

	// Shift by 50px: every sample lands outside the source
	shift := Homography{1, 0, 50, 0, 1, 50, 0, 0, 1}
	WarpPerspective(src, dst, shift)

	if got := dst.RGBAAt(5, 5); got != (color.RGBA{200, 200, 200, 200}) {
		t.Errorf("out-of-range sample: got %+v, want edge value", got)
	}
}
