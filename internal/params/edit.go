package params

import (
	"fmt"
	"math"
)

// Points returns the four stored calibration corners.
func (s *Store) Points() [NumCorners]Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points
}

// Point returns corner i.
func (s *Store) Point(i int) (Point, error) {
	if i < 0 || i >= NumCorners {
		return Point{}, fmt.Errorf("%w: corner index %d", ErrInvalidParameter, i)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points[i], nil
}

// SetPoint stores corner i.
func (s *Store) SetPoint(i int, p Point) error {
	if i < 0 || i >= NumCorners {
		return fmt.Errorf("%w: corner index %d", ErrInvalidParameter, i)
	}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("%w: corner %d must be finite", ErrInvalidParameter, i)
	}
	s.mu.Lock()
	s.points[i] = p
	s.hasPoints[i] = true
	s.mu.Unlock()
	return nil
}

// HasCalibration reports whether all four corners have been set or loaded.
func (s *Store) HasCalibration() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ok := range s.hasPoints {
		if !ok {
			return false
		}
	}
	return true
}

// DefaultCorners fills every corner that was never set with the matching
// corner of a w×h frame. It returns how many corners were filled. An open
// edit session's snapshot is filled too, so cancelling it keeps the defaults.
func (s *Store) DefaultCorners(w, h int) int {
	def := FrameCorners(w, h)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.points {
		if !s.hasPoints[i] {
			s.points[i] = def[i]
			s.hasPoints[i] = true
			n++
		}
		if s.staged != nil && !s.staged.hasPoints[i] {
			s.staged.points[i] = def[i]
			s.staged.hasPoints[i] = true
		}
	}
	return n
}

// BeginEdit snapshots parameters and corners. Calling it again while a
// session is open replaces the snapshot.
func (s *Store) BeginEdit() {
	s.mu.Lock()
	s.staged = &staged{
		params:    s.params,
		points:    s.points,
		hasPoints: s.hasPoints,
	}
	s.mu.Unlock()
	s.logger.Debug("parameter edit session opened")
}

// Editing reports whether an edit session is open.
func (s *Store) Editing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staged != nil
}

// Cancel restores the state captured by BeginEdit and closes the session.
func (s *Store) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return ErrNoEditSession
	}
	s.params = s.staged.params
	s.points = s.staged.points
	s.hasPoints = s.staged.hasPoints
	s.staged = nil
	s.logger.Debug("parameter edit session cancelled")
	return nil
}

// Commit saves the working state and closes the session. If saving fails the
// session stays open so the caller can retry or cancel.
func (s *Store) Commit() error {
	if err := s.Save(); err != nil {
		return err
	}
	s.mu.Lock()
	s.staged = nil
	s.mu.Unlock()
	s.logger.Debug("parameter edit session committed")
	return nil
}
