package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/ini.v1"
)

// iniSection holds all keys; the file has no other sections.
const iniSection = "ShadowDetector"

// INIPrefs stores values in an INI file. Writes stay in memory until Flush.
type INIPrefs struct {
	path   string
	file   *ini.File
	closed bool
}

// OpenINI loads path if it exists or starts an empty file otherwise.
func OpenINI(path string) (*INIPrefs, error) {
	if path == "" {
		return nil, fmt.Errorf("ini prefs: empty path")
	}
	f, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load prefs file: %w", err)
	}
	return &INIPrefs{path: path, file: f}, nil
}

func (p *INIPrefs) section() *ini.Section {
	return p.file.Section(iniSection)
}

// HasKey reports whether key is present in the file.
func (p *INIPrefs) HasKey(key string) bool {
	return p.section().HasKey(key)
}

// GetInt returns the stored integer or 0.
func (p *INIPrefs) GetInt(key string) int {
	if !p.HasKey(key) {
		return 0
	}
	return p.section().Key(key).MustInt(0)
}

// GetFloat returns the stored float or 0.
func (p *INIPrefs) GetFloat(key string) float64 {
	if !p.HasKey(key) {
		return 0
	}
	return p.section().Key(key).MustFloat64(0)
}

// GetBool returns the stored boolean or false.
func (p *INIPrefs) GetBool(key string) bool {
	if !p.HasKey(key) {
		return false
	}
	return p.section().Key(key).MustBool(false)
}

func (p *INIPrefs) set(key, value string) error {
	if p.closed {
		return ErrClosed
	}
	p.section().Key(key).SetValue(value)
	return nil
}

// SetInt stores v under key.
func (p *INIPrefs) SetInt(key string, v int) error {
	return p.set(key, strconv.Itoa(v))
}

// SetFloat stores v under key.
func (p *INIPrefs) SetFloat(key string, v float64) error {
	return p.set(key, strconv.FormatFloat(v, 'g', -1, 64))
}

// SetBool stores v under key.
func (p *INIPrefs) SetBool(key string, v bool) error {
	return p.set(key, strconv.FormatBool(v))
}

// Flush writes the file to disk, creating its directory if needed.
func (p *INIPrefs) Flush() error {
	if p.closed {
		return ErrClosed
	}
	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create prefs directory: %w", err)
		}
	}
	if err := p.file.SaveTo(p.path); err != nil {
		return fmt.Errorf("failed to save prefs file: %w", err)
	}
	return nil
}

// Close flushes and closes the store.
func (p *INIPrefs) Close() error {
	if p.closed {
		return nil
	}
	err := p.Flush()
	p.closed = true
	return err
}
