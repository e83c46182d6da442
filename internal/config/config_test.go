package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.InitialRotation() != types.Rotation90 {
		t.Fatalf("InitialRotation = %v, want 90°", cfg.InitialRotation())
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
http_addr: ":9000"
log_level: debug
camera:
  source: shm
  shm_name: /test_frames
pipeline:
  rotation: 270
monitor:
  status_interval: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != logger.DEBUG {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Camera.Source != SourceSHM || cfg.Camera.ShmName != "/test_frames" {
		t.Errorf("Camera = %+v", cfg.Camera)
	}
	if cfg.InitialRotation() != types.Rotation270 {
		t.Errorf("rotation = %v", cfg.InitialRotation())
	}
	if cfg.Monitor.StatusInterval != 500*time.Millisecond {
		t.Errorf("StatusInterval = %v", cfg.Monitor.StatusInterval)
	}
	// Untouched fields keep their defaults.
	if cfg.Monitor.JPEGQuality != 80 || cfg.Pipeline.Backend != BackendGo {
		t.Errorf("defaults lost: %+v %+v", cfg.Monitor, cfg.Pipeline)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "camera: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeFile(t, "log_level: loud\n")); err == nil {
		t.Error("expected error for bad log level")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"odd width", func(c *Config) { c.Camera.Width = 641 }, "even"},
		{"unknown source", func(c *Config) { c.Camera.Source = "usb" }, "camera source"},
		{"empty shm name", func(c *Config) { c.Camera.Source = SourceSHM; c.Camera.ShmName = "" }, "shm_name"},
		{"unknown backend", func(c *Config) { c.Pipeline.Backend = "cuda" }, "backend"},
		{"bad rotation", func(c *Config) { c.Pipeline.Rotation = 45 }, "45"},
		{"zero queue", func(c *Config) { c.Pipeline.UIQueueSize = 0 }, "ui_queue_size"},
		{"quality", func(c *Config) { c.Monitor.JPEGQuality = 101 }, "jpeg_quality"},
		{"interval", func(c *Config) { c.Monitor.StatusInterval = 0 }, "status_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, `
http_addr: ":9000"
camera:
  fps: 10
pipeline:
  backend: go
`)
	cfg, err := Parse("diffmonitor", []string{
		"-config", path,
		"-fps", "25",
		"-log-level", "warn",
		"-rotation", "0",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want value from file", cfg.HTTPAddr)
	}
	if cfg.Camera.FPS != 25 {
		t.Errorf("FPS = %d, want flag value 25", cfg.Camera.FPS)
	}
	if cfg.LogLevel != logger.WARN {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.InitialRotation() != types.Rotation0 {
		t.Errorf("rotation = %v", cfg.InitialRotation())
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := Parse("diffmonitor", []string{"-backend", "cuda"}); err == nil {
		t.Error("expected validation error")
	}
	if _, err := Parse("diffmonitor", []string{"-no-such-flag"}); err == nil {
		t.Error("expected flag error")
	}
}
