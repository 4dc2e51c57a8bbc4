package rectify

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/ironsheep/shadow-detector/internal/params"
)

// ErrNoTransform is returned by Warp before any valid calibration was seen.
var ErrNoTransform = errors.New("no valid perspective transform")

// Rectifier keeps the perspective transform for the current calibration.
// When the corners become degenerate, the last valid transform stays in use.
type Rectifier struct {
	logger *slog.Logger

	mu       sync.Mutex
	forward  Homography
	backward Homography
	valid    bool

	// last attempted input, so unchanged corners are not re-solved
	lastCorners [params.NumCorners]params.Point
	lastW       int
	lastH       int
	lastErr     error
	attempted   bool
}

// New creates a Rectifier with no transform. A nil logger discards output.
func New(logger *slog.Logger) *Rectifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Rectifier{logger: logger}
}

// Update computes the transform that sends corners onto a w×h rectangle.
// It returns ErrDegenerateCalibration for unusable corners; in that case the
// previous transform, if any, is retained. A warning is logged once per
// distinct degenerate configuration.
func (r *Rectifier) Update(corners [params.NumCorners]params.Point, w, h int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempted && corners == r.lastCorners && w == r.lastW && h == r.lastH {
		return r.lastErr
	}
	r.attempted = true
	r.lastCorners, r.lastW, r.lastH = corners, w, h

	fwd, err := Solve(corners, params.FrameCorners(w, h))
	var back Homography
	if err == nil {
		back, err = fwd.Inverse()
	}
	if err != nil {
		r.lastErr = err
		r.logger.Warn("calibration rejected, keeping previous transform",
			"corners", corners, "retained", r.valid, "error", err)
		return err
	}

	r.forward, r.backward, r.valid = fwd, back, true
	r.lastErr = nil
	r.logger.Debug("perspective transform updated", "corners", corners, "width", w, "height", h)
	return nil
}

// Valid reports whether a transform is available.
func (r *Rectifier) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valid
}

// Transform returns the forward (camera → rectified) transform.
func (r *Rectifier) Transform() (Homography, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forward, r.valid
}

// Warp resamples src into dst through the current transform.
// dst must already have the output size; its previous contents are overwritten.
func (r *Rectifier) Warp(src, dst *image.RGBA) error {
	r.mu.Lock()
	back, ok := r.backward, r.valid
	r.mu.Unlock()
	if !ok {
		return ErrNoTransform
	}
	WarpPerspective(src, dst, back)
	return nil
}

// WarpPerspective fills dst by backward mapping: each output pixel (x, y)
// samples src at back(x, y) with bilinear interpolation. Samples outside src
// replicate the nearest edge pixel.
//
// Rows are processed in parallel.
func WarpPerspective(src, dst *image.RGBA, back Homography) {
	sb := src.Bounds()
	db := dst.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	dw, dh := db.Dx(), db.Dy()
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		return
	}

	parallel.Line(dh, func(start, end int) {
		for y := start; y < end; y++ {
			off := dst.PixOffset(db.Min.X, db.Min.Y+y)
			row := dst.Pix[off : off+dw*4]
			for x := 0; x < dw; x++ {
				fx, fy := back.Apply(float64(x), float64(y))
				sampleBilinear(src, sw, sh, fx, fy, row[x*4:x*4+4])
			}
		}
	})
}

func sampleBilinear(src *image.RGBA, w, h int, fx, fy float64, out []uint8) {
	if math.IsNaN(fx) || math.IsNaN(fy) {
		fx, fy = 0, 0
	}
	fx = math.Max(0, math.Min(float64(w-1), fx))
	fy = math.Max(0, math.Min(float64(h-1), fy))

	x0 := int(fx)
	y0 := int(fy)
	x1 := min(x0+1, w-1)
	y1 := min(y0+1, h-1)
	ax := fx - float64(x0)
	ay := fy - float64(y0)

	ox, oy := src.Rect.Min.X, src.Rect.Min.Y
	i00 := src.PixOffset(ox+x0, oy+y0)
	i10 := src.PixOffset(ox+x1, oy+y0)
	i01 := src.PixOffset(ox+x0, oy+y1)
	i11 := src.PixOffset(ox+x1, oy+y1)

	for c := 0; c < 4; c++ {
		top := float64(src.Pix[i00+c])*(1-ax) + float64(src.Pix[i10+c])*ax
		bottom := float64(src.Pix[i01+c])*(1-ax) + float64(src.Pix[i11+c])*ax
		v := top*(1-ay) + bottom*ay
		out[c] = uint8(v + 0.5)
	}
}
