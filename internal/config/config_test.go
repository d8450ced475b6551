package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	t.Setenv(EnvServerURL, "")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Audio.CountdownSeconds != 10 {
		t.Errorf("expected 10s countdown, got %d", cfg.Audio.CountdownSeconds)
	}
	if cfg.Audio.CapturePath != PathRecorder {
		t.Errorf("expected recorder path, got %q", cfg.Audio.CapturePath)
	}
	if cfg.Server.Timeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Server.Timeout())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Setenv(EnvServerURL, "")
	path := filepath.Join(t.TempDir(), "voicegate", "config.json")

	cfg := Default()
	cfg.Identity = IdentityConfig{FullName: "Ada Lovelace", Email: "ada@example.com", Username: "ada", DOB: "1815-12-10"}
	cfg.Audio.CapturePath = PathFrames
	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %v", st.Mode().Perm())
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Identity != cfg.Identity {
		t.Errorf("identity mismatch: %+v", loaded.Identity)
	}
	if loaded.Audio.CapturePath != PathFrames {
		t.Errorf("expected frames path, got %q", loaded.Audio.CapturePath)
	}
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv(EnvServerURL, "https://voice.example.com")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.BaseURL != "https://voice.example.com" {
		t.Errorf("expected env override, got %q", cfg.Server.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero countdown", func(c *Config) { c.Audio.CountdownSeconds = 0 }, "countdown_seconds"},
		{"unknown path", func(c *Config) { c.Audio.CapturePath = "worklet" }, "capture_path"},
		{"relative url", func(c *Config) { c.Server.BaseURL = "/api" }, "base_url"},
		{"zero timeout", func(c *Config) { c.Server.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"zero fragment", func(c *Config) { c.Audio.FragmentMillis = 0 }, "fragment_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFileRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
