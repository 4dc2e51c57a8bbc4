package prefs

import "sync"

// Memory is an in-process Prefs backend. It is safe for concurrent use.
// Flushes counts successful Flush calls, which tests use to observe commits.
type Memory struct {
	mu      sync.RWMutex
	ints    map[string]int
	floats  map[string]float64
	bools   map[string]bool
	flushes int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		ints:   make(map[string]int),
		floats: make(map[string]float64),
		bools:  make(map[string]bool),
	}
}

func (m *Memory) HasKey(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.ints[key]; ok {
		return true
	}
	if _, ok := m.floats[key]; ok {
		return true
	}
	_, ok := m.bools[key]
	return ok
}

func (m *Memory) GetInt(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ints[key]
}

func (m *Memory) GetFloat(key string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.floats[key]
}

func (m *Memory) GetBool(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bools[key]
}

func (m *Memory) SetInt(key string, v int) error {
	m.mu.Lock()
	m.ints[key] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetFloat(key string, v float64) error {
	m.mu.Lock()
	m.floats[key] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetBool(key string, v bool) error {
	m.mu.Lock()
	m.bools[key] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) Flush() error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

// Flushes returns how many times Flush has been called.
func (m *Memory) Flushes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flushes
}

func (m *Memory) Close() error { return nil }
