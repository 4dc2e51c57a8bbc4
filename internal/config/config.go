// Package config loads the shadow-detector application configuration from
// YAML. Missing files yield defaults; values are clamped to safe ranges after
// decoding.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvConfigPath = "SHADOW_CONFIG"
	EnvLogLevel   = "SHADOW_LOG_LEVEL"
)

// DefaultPath is read when SHADOW_CONFIG is unset.
const DefaultPath = "shadow-detector.yaml"

// DeviceConfig selects and shapes the camera stream.
type DeviceConfig struct {
	// Name is a device name or index. Empty picks the first colour camera.
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	// Root is the directory tree replayed by the image-directory driver.
	Root string `yaml:"root"`
}

// StorageConfig selects the durable parameter backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// ScreenConfig is the display surface size in screen units.
type ScreenConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// ViewportConfig is the orthographic world camera. OrthoSize 0 leaves
// shadows in screen coordinates.
type ViewportConfig struct {
	CenterX   float64 `yaml:"center_x"`
	CenterY   float64 `yaml:"center_y"`
	OrthoSize float64 `yaml:"ortho_size"`
}

// DisplayConfig controls what the pipeline publishes for display.
type DisplayConfig struct {
	Views         bool    `yaml:"views"`
	DrawPoints    bool    `yaml:"draw_points"`
	PointRadius   int     `yaml:"point_radius"`
	PointColor    string  `yaml:"point_color"`
	SelectedColor string  `yaml:"selected_color"`
	PreviewScale  float64 `yaml:"preview_scale"`
}

// Config is the application configuration.
type Config struct {
	Device      DeviceConfig   `yaml:"device"`
	Storage     StorageConfig  `yaml:"storage"`
	Screen      ScreenConfig   `yaml:"screen"`
	Viewport    ViewportConfig `yaml:"viewport"`
	Display     DisplayConfig  `yaml:"display"`
	TickHz      int            `yaml:"tick_hz"`
	MetricsAddr string         `yaml:"metrics_addr"`
	LogLevel    string         `yaml:"log_level"`
	// InitTimeoutSeconds logs a warning when no frame arrived in time. 0 disables it.
	InitTimeoutSeconds int `yaml:"init_timeout_seconds"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Width:  640,
			Height: 360,
			FPS:    30,
			Root:   "frames",
		},
		Storage: StorageConfig{
			Backend: "ini",
			Path:    "shadow-detector.ini",
		},
		Screen: ScreenConfig{Width: 1920, Height: 1080},
		Display: DisplayConfig{
			Views:         true,
			DrawPoints:    true,
			PointRadius:   6,
			PointColor:    "#00ff00",
			SelectedColor: "#ff0000",
			PreviewScale:  1,
		},
		TickHz:             60,
		LogLevel:           "info",
		InitTimeoutSeconds: 10,
	}
}

// Validate clamps/normalizes values to safe ranges. It fails only for values
// that cannot be repaired: an unknown storage backend.
func (c *Config) Validate() error {
	d := DefaultConfig()

	if c.Device.Width < 0 {
		c.Device.Width = 0
	}
	if c.Device.Height < 0 {
		c.Device.Height = 0
	}
	if c.Device.FPS <= 0 || c.Device.FPS > 240 {
		c.Device.FPS = d.Device.FPS
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case "":
		c.Storage.Backend = d.Storage.Backend
	case "ini", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Path == "" && c.Storage.Backend != "memory" {
		c.Storage.Path = d.Storage.Path
	}

	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		c.Screen = d.Screen
	}
	if c.Viewport.OrthoSize < 0 {
		c.Viewport.OrthoSize = 0
	}

	if c.Display.PointRadius <= 0 {
		c.Display.PointRadius = d.Display.PointRadius
	}
	if _, err := colorful.Hex(c.Display.PointColor); err != nil {
		c.Display.PointColor = d.Display.PointColor
	}
	if _, err := colorful.Hex(c.Display.SelectedColor); err != nil {
		c.Display.SelectedColor = d.Display.SelectedColor
	}
	if c.Display.PreviewScale <= 0 || c.Display.PreviewScale > 4 {
		c.Display.PreviewScale = d.Display.PreviewScale
	}

	if c.TickHz <= 0 || c.TickHz > 1000 {
		c.TickHz = d.TickHz
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		c.LogLevel = d.LogLevel
	}
	if c.InitTimeoutSeconds < 0 {
		c.InitTimeoutSeconds = 0
	}
	return nil
}

// Load reads configuration from the YAML file at path. If the file does not
// exist it returns DefaultConfig(). Keys absent from the file keep their
// defaults. A file that cannot be parsed or validated yields DefaultConfig()
// along with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by SHADOW_CONFIG, or DefaultPath.
func LoadFromEnv() (*Config, string, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultPath
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Save writes the configuration to path in YAML format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Level returns the slog level, taking SHADOW_LOG_LEVEL over log_level.
func (c *Config) Level() slog.Level {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		return lvl
	}
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
