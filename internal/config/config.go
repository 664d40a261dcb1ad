// Package config loads handcam settings from defaults and an optional YAML
// file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/handcam/internal/assets"
	"github.com/ayusman/handcam/internal/capture"
	"github.com/ayusman/handcam/internal/detector"
)

// DefaultAddr is the default HTTP listen address.
const DefaultAddr = "127.0.0.1:8080"

const maxFileSize = 1 << 20

// Config is the root configuration.
type Config struct {
	Addr      string       `yaml:"addr"`
	StaticDir string       `yaml:"static_dir"` // served under /static/ when set
	Camera    CameraConfig `yaml:"camera"`
	Assets    AssetsConfig `yaml:"assets"`
	Log       LogConfig    `yaml:"log"`
	Tray      bool         `yaml:"tray"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	DeviceID int `yaml:"device_id"`
	FPS      int `yaml:"fps"`
}

// AssetsConfig controls loading of the hand-detection runtime.
type AssetsConfig struct {
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Script  string        `yaml:"script"`
	Python  string        `yaml:"python"`
}

// LogConfig sets the logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr: DefaultAddr,
		Camera: CameraConfig{
			DeviceID: 0,
			FPS:      capture.DefaultFPS,
		},
		Assets: AssetsConfig{
			Retries: assets.DefaultRetries,
			Backoff: assets.DefaultBackoff,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.StaticDir != "" {
		info, err := os.Stat(c.StaticDir)
		if err != nil {
			return fmt.Errorf("static_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("static_dir %q is not a directory", c.StaticDir)
		}
	}
	if c.Camera.DeviceID < 0 {
		return fmt.Errorf("camera.device_id must be >= 0, got %d", c.Camera.DeviceID)
	}
	if c.Camera.FPS < 1 || c.Camera.FPS > 120 {
		return fmt.Errorf("camera.fps must be between 1 and 120, got %d", c.Camera.FPS)
	}
	if c.Assets.Retries < 1 {
		return fmt.Errorf("assets.retries must be >= 1, got %d", c.Assets.Retries)
	}
	if c.Assets.Backoff < 0 {
		return fmt.Errorf("assets.backoff must not be negative, got %s", c.Assets.Backoff)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// CameraDevice returns the capture settings at the fixed frame size.
func (c *Config) CameraDevice() capture.Config {
	cfg := capture.DefaultConfig()
	cfg.DeviceID = c.Camera.DeviceID
	cfg.FPS = c.Camera.FPS
	return cfg
}

// Loader returns the asset loader settings.
func (c *Config) Loader() assets.Config {
	return assets.Config{Retries: c.Assets.Retries, Backoff: c.Assets.Backoff}
}

// MediaPipe returns the hand-detection service settings.
func (c *Config) MediaPipe() detector.MediaPipeConfig {
	return detector.MediaPipeConfig{Script: c.Assets.Script, Python: c.Assets.Python}
}

// ConfigureLogging applies the log level and format to the standard logrus
// logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
