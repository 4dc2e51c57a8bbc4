package prefs

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLitePrefs stores values in a single-table SQLite database.
// Every Set is committed immediately; Flush is a no-op.
type SQLitePrefs struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLitePrefs, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite prefs: empty path")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create prefs directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prefs database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping prefs database: %w", err)
	}

	// SQLite works best with a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create prefs table: %w", err)
	}

	return &SQLitePrefs{conn: conn, path: path}, nil
}

func (p *SQLitePrefs) lookup(key string) (string, bool) {
	if p.conn == nil {
		return "", false
	}
	var v string
	err := p.conn.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return "", false
	}
	return v, true
}

// HasKey reports whether a row exists for key.
func (p *SQLitePrefs) HasKey(key string) bool {
	_, ok := p.lookup(key)
	return ok
}

// GetInt returns the stored integer or 0.
func (p *SQLitePrefs) GetInt(key string) int {
	v, ok := p.lookup(key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetFloat returns the stored float or 0.
func (p *SQLitePrefs) GetFloat(key string) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// GetBool returns the stored boolean or false.
func (p *SQLitePrefs) GetBool(key string) bool {
	v, ok := p.lookup(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func (p *SQLitePrefs) set(key, value string) error {
	if p.conn == nil {
		return ErrClosed
	}
	_, err := p.conn.Exec(
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write pref %s: %w", key, err)
	}
	return nil
}

// SetInt stores v under key.
func (p *SQLitePrefs) SetInt(key string, v int) error {
	return p.set(key, strconv.Itoa(v))
}

// SetFloat stores v under key.
func (p *SQLitePrefs) SetFloat(key string, v float64) error {
	return p.set(key, strconv.FormatFloat(v, 'g', -1, 64))
}

// SetBool stores v under key.
func (p *SQLitePrefs) SetBool(key string, v bool) error {
	return p.set(key, strconv.FormatBool(v))
}

// Flush is a no-op; writes are committed as they happen.
func (p *SQLitePrefs) Flush() error {
	if p.conn == nil {
		return ErrClosed
	}
	return nil
}

// Close closes the database connection.
func (p *SQLitePrefs) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
