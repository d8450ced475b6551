package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Capture paths.
const (
	PathRecorder = "recorder"
	PathFrames   = "frames"
)

// EnvServerURL overrides Server.BaseURL when set.
const EnvServerURL = "VOICEGATE_SERVER_URL"

type Config struct {
	Identity    IdentityConfig `json:"identity"`
	Audio       AudioConfig    `json:"audio"`
	Server      ServerConfig   `json:"server"`
	LogLevel    string         `json:"log_level"`
	MetricsAddr string         `json:"metrics_addr"` // empty disables the listener

	path string
}

// IdentityConfig holds the profile sent on registration.
type IdentityConfig struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	Username string `json:"username"`
	DOB      string `json:"dob"` // YYYY-MM-DD
}

type AudioConfig struct {
	DeviceID         string `json:"device_id"`
	SampleRate       int    `json:"sample_rate"` // hint only
	FramesPerBuffer  int    `json:"frames_per_buffer"`
	CapturePath      string `json:"capture_path"` // "recorder" or "frames"
	CountdownSeconds int    `json:"countdown_seconds"`
	FragmentMillis   int    `json:"fragment_ms"`
}

type ServerConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout returns the request timeout.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Fragment returns the recorder timeslice.
func (a AudioConfig) Fragment() time.Duration {
	return time.Duration(a.FragmentMillis) * time.Millisecond
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			DeviceID:         "",
			SampleRate:       16000,
			FramesPerBuffer:  128,
			CapturePath:      PathRecorder,
			CountdownSeconds: 10,
			FragmentMillis:   100,
		},
		Server: ServerConfig{
			BaseURL:        "http://localhost:5000",
			TimeoutSeconds: 30,
		},
		LogLevel: "info",
	}
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	return LoadFile(configPath())
}

// LoadFile reads the config at path. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.Server.BaseURL = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Audio.CountdownSeconds < 1 {
		return fmt.Errorf("audio.countdown_seconds must be positive, got %d", c.Audio.CountdownSeconds)
	}
	if c.Audio.FramesPerBuffer < 0 {
		return fmt.Errorf("audio.frames_per_buffer must not be negative, got %d", c.Audio.FramesPerBuffer)
	}
	if c.Audio.FragmentMillis < 1 {
		return fmt.Errorf("audio.fragment_ms must be positive, got %d", c.Audio.FragmentMillis)
	}
	switch c.Audio.CapturePath {
	case PathRecorder, PathFrames:
	default:
		return fmt.Errorf("audio.capture_path must be %q or %q, got %q", PathRecorder, PathFrames, c.Audio.CapturePath)
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute URL, got %q", c.Server.BaseURL)
	}
	if c.Server.TimeoutSeconds < 1 {
		return fmt.Errorf("server.timeout_seconds must be positive, got %d", c.Server.TimeoutSeconds)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	if c.path != "" {
		return c.SaveFile(c.path)
	}
	return c.SaveFile(configPath())
}

// SaveFile writes the config to path.
func (c *Config) SaveFile(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// The identity block is personal data.
	return os.WriteFile(path, data, 0600)
}

// Path returns the platform-specific config file path.
func Path() string {
	return configPath()
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "voicegate", "config.json")
}
