package params

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/ironsheep/shadow-detector/internal/prefs"
)

// Store is the single owner of DetectionParameters and calibration corners.
// It is safe for concurrent use; readers take a Snapshot per frame.
type Store struct {
	mu     sync.RWMutex
	prefs  prefs.Prefs
	logger *slog.Logger

	params    DetectionParameters
	points    [NumCorners]Point
	hasPoints [NumCorners]bool

	staged *staged
}

type staged struct {
	params    DetectionParameters
	points    [NumCorners]Point
	hasPoints [NumCorners]bool
}

// Snapshot is an immutable copy of the store's state.
type Snapshot struct {
	Params DetectionParameters `json:"params"`
	Points [NumCorners]Point   `json:"points"`
}

// NewStore creates a store backed by p holding Defaults().
// A nil logger discards output.
func NewStore(p prefs.Prefs, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		prefs:  p,
		logger: logger,
		params: Defaults(),
	}
}

// Load replaces the parameters with the persisted values. Absent keys read as
// zero and are then normalised, matching a first run against empty storage.
// Calibration corners are only taken when both coordinates are present.
func (s *Store) Load() error {
	if s.prefs == nil {
		return fmt.Errorf("load parameters: no storage")
	}

	p := DetectionParameters{
		ColorShiftR:      s.prefs.GetInt(KeyColorShiftR),
		ColorShiftG:      s.prefs.GetInt(KeyColorShiftG),
		ColorShiftB:      s.prefs.GetInt(KeyColorShiftB),
		Threshold:        s.prefs.GetInt(KeyThreshold),
		EpsilonFactor:    s.prefs.GetFloat(KeyEpsilonFactor),
		BlurKernelSize:   s.prefs.GetInt(KeyBlurKernelSize),
		MinContourArea:   s.prefs.GetInt(KeyMinContourArea),
		SimplifyContours: s.prefs.GetInt(KeySimplifyContours) != 0,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.params = p.Normalize()
	for i := 0; i < NumCorners; i++ {
		kx, ky := pointKeys(i)
		if s.prefs.HasKey(kx) && s.prefs.HasKey(ky) {
			s.points[i] = Point{X: s.prefs.GetFloat(kx), Y: s.prefs.GetFloat(ky)}
			s.hasPoints[i] = true
		}
	}

	s.logger.Debug("parameters loaded", "params", s.params, "corners", s.hasPoints)
	return nil
}

// Save writes the current parameters and known corners and flushes storage.
func (s *Store) Save() error {
	s.mu.RLock()
	p := s.params
	points := s.points
	has := s.hasPoints
	s.mu.RUnlock()

	return s.write(p, points, has)
}

func (s *Store) write(p DetectionParameters, points [NumCorners]Point, has [NumCorners]bool) error {
	if s.prefs == nil {
		return fmt.Errorf("save parameters: no storage")
	}

	approx := 0
	if p.SimplifyContours {
		approx = 1
	}

	ints := []struct {
		key string
		v   int
	}{
		{KeyColorShiftR, p.ColorShiftR},
		{KeyColorShiftG, p.ColorShiftG},
		{KeyColorShiftB, p.ColorShiftB},
		{KeyThreshold, p.Threshold},
		{KeyBlurKernelSize, p.BlurKernelSize},
		{KeyMinContourArea, p.MinContourArea},
		{KeySimplifyContours, approx},
	}
	for _, kv := range ints {
		if err := s.prefs.SetInt(kv.key, kv.v); err != nil {
			return fmt.Errorf("save parameters: %w", err)
		}
	}
	if err := s.prefs.SetFloat(KeyEpsilonFactor, p.EpsilonFactor); err != nil {
		return fmt.Errorf("save parameters: %w", err)
	}

	for i := 0; i < NumCorners; i++ {
		if !has[i] {
			continue
		}
		kx, ky := pointKeys(i)
		if err := s.prefs.SetFloat(kx, points[i].X); err != nil {
			return fmt.Errorf("save corner %d: %w", i, err)
		}
		if err := s.prefs.SetFloat(ky, points[i].Y); err != nil {
			return fmt.Errorf("save corner %d: %w", i, err)
		}
	}

	if err := s.prefs.Flush(); err != nil {
		return fmt.Errorf("save parameters: %w", err)
	}
	return nil
}

// Params returns a copy of the current parameters.
func (s *Store) Params() DetectionParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SetParams replaces all parameters, normalising them first, and returns
// the values actually stored.
func (s *Store) SetParams(p DetectionParameters) DetectionParameters {
	p = p.Normalize()
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return p
}

// Snapshot returns the parameters and corners in one consistent read.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Params: s.params, Points: s.points}
}

// Get returns the value of a named field: an int, a float64 or a bool.
func (s *Store) Get(field string) (any, error) {
	p := s.Params()
	switch field {
	case KeyColorShiftR:
		return p.ColorShiftR, nil
	case KeyColorShiftG:
		return p.ColorShiftG, nil
	case KeyColorShiftB:
		return p.ColorShiftB, nil
	case KeyThreshold:
		return p.Threshold, nil
	case KeyEpsilonFactor:
		return p.EpsilonFactor, nil
	case KeyBlurKernelSize:
		return p.BlurKernelSize, nil
	case KeyMinContourArea:
		return p.MinContourArea, nil
	case KeySimplifyContours:
		return p.SimplifyContours, nil
	}
	return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidParameter, field)
}

// Set assigns a named field. Numeric fields accept any Go number or a
// json.Number; integer fields truncate toward zero. Out-of-range values are
// clamped. The stored value is returned.
func (s *Store) Set(field string, value any) (any, error) {
	if field == KeySimplifyContours {
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a boolean, got %T", ErrInvalidParameter, field, value)
		}
		s.mu.Lock()
		s.params.SimplifyContours = b
		s.mu.Unlock()
		return b, nil
	}

	f, err := toFloat(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, field, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s must be finite", ErrInvalidParameter, field)
	}
	// Clamp before truncating so huge values cannot overflow int.
	i := int(math.Max(-1e9, math.Min(1e9, f)))

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.params
	switch field {
	case KeyColorShiftR:
		p.ColorShiftR = i
	case KeyColorShiftG:
		p.ColorShiftG = i
	case KeyColorShiftB:
		p.ColorShiftB = i
	case KeyThreshold:
		p.Threshold = i
	case KeyEpsilonFactor:
		p.EpsilonFactor = f
	case KeyBlurKernelSize:
		p.BlurKernelSize = i
	case KeyMinContourArea:
		p.MinContourArea = i
	default:
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidParameter, field)
	}
	s.params = p.Normalize()

	switch field {
	case KeyEpsilonFactor:
		return s.params.EpsilonFactor, nil
	case KeyColorShiftR:
		return s.params.ColorShiftR, nil
	case KeyColorShiftG:
		return s.params.ColorShiftG, nil
	case KeyColorShiftB:
		return s.params.ColorShiftB, nil
	case KeyThreshold:
		return s.params.Threshold, nil
	case KeyBlurKernelSize:
		return s.params.BlurKernelSize, nil
	default:
		return s.params.MinContourArea, nil
	}
}

// SetBlurKernelSize stores the odd kernel size derived from v and returns it.
func (s *Store) SetBlurKernelSize(v int) int {
	k := NormalizeBlurKernelSize(v)
	s.mu.Lock()
	s.params.BlurKernelSize = k
	s.mu.Unlock()
	return k
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
