// Package prefs provides durable key-value storage for detector settings.
//
// Values are typed (int, float, bool) and addressed by fixed string keys.
// Reading a key that was never written yields the zero value of its type,
// so callers can load a fresh store without special-casing first runs.
//
// Three backends are available:
//   - INI file (default): human-editable, written on Flush
//   - SQLite database: every Set is committed immediately
//   - Memory: process-local, used by tests and embedders
//
// A Prefs value is not safe for concurrent use unless the backend says so;
// the detector only touches it from its tick goroutine.
package prefs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations on a backend after Close.
var ErrClosed = errors.New("prefs: store closed")

// Prefs is typed durable key-value storage.
type Prefs interface {
	// HasKey reports whether key has ever been written.
	HasKey(key string) bool

	GetInt(key string) int
	GetFloat(key string) float64
	GetBool(key string) bool

	SetInt(key string, v int) error
	SetFloat(key string, v float64) error
	SetBool(key string, v bool) error

	// Flush makes all previous Set calls durable.
	Flush() error

	// Close releases the backend. Pending writes are flushed first.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendINI    = "ini"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the backend named by backend, storing data at path.
// The memory backend ignores path.
func Open(backend, path string) (Prefs, error) {
	switch strings.ToLower(backend) {
	case "", BackendINI:
		p, err := OpenINI(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendSQLite:
		p, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown prefs backend: %s", backend)
	}
}
