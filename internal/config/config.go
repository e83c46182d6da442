// Package config loads the diff monitor configuration from a YAML file and
// command-line flags. Flags given on the command line override the file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/shm"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// Source kinds
const (
	SourceSynthetic = "synthetic"
	SourceSHM       = "shm"
)

// Processing backends
const (
	BackendGo     = "go"
	BackendOpenCV = "opencv"
)

// Config represents the complete diff monitor configuration
type Config struct {
	HTTPAddr        string          `yaml:"http_addr"`
	MetricsAddr     string          `yaml:"metrics_addr"` // empty disables the metrics server
	PprofAddr       string          `yaml:"pprof_addr"`   // empty disables pprof
	LogLevel        logger.LogLevel `yaml:"log_level"`
	LogColor        bool            `yaml:"log_color"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Camera          CameraConfig    `yaml:"camera"`
	Pipeline        PipelineConfig  `yaml:"pipeline"`
	Monitor         MonitorConfig   `yaml:"monitor"`
}

// CameraConfig selects and shapes the frame source
type CameraConfig struct {
	Source         string        `yaml:"source"` // synthetic, shm
	ShmName        string        `yaml:"shm_name"`
	ShmOpenTimeout time.Duration `yaml:"shm_open_timeout"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	FPS            int           `yaml:"fps"`
}

// PipelineConfig controls frame processing
type PipelineConfig struct {
	Backend     string `yaml:"backend"`  // go, opencv
	Rotation    int    `yaml:"rotation"` // initial display rotation in degrees
	UIQueueSize int    `yaml:"ui_queue_size"`
}

// MonitorConfig controls the display surface and HTTP API
type MonitorConfig struct {
	JPEGQuality    int           `yaml:"jpeg_quality"`
	StatusInterval time.Duration `yaml:"status_interval"`
	RecordPath     string        `yaml:"record_path"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		PprofAddr:       "",
		LogLevel:        logger.INFO,
		LogColor:        true,
		ShutdownTimeout: 5 * time.Second,
		Camera: CameraConfig{
			Source:         SourceSynthetic,
			ShmName:        shm.DefaultName,
			ShmOpenTimeout: 30 * time.Second,
			Width:          640,
			Height:         480,
			FPS:            30,
		},
		Pipeline: PipelineConfig{
			Backend:     BackendGo,
			Rotation:    90,
			UIQueueSize: 4,
		},
		Monitor: MonitorConfig{
			JPEGQuality:    80,
			StatusInterval: 2 * time.Second,
			RecordPath:     "./recordings",
		},
	}
}

// Load reads a YAML file on top of DefaultConfig and validates the result
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Parse builds the configuration from command-line arguments. When -config
// names a file it is loaded first, then explicitly set flags are applied on
// top of it.
func Parse(name string, args []string) (*Config, error) {
	// First pass only discovers -config.
	probe := DefaultConfig()
	var path string
	fs := newFlagSet(name, &probe, &path)
	fs.SetOutput(io.Discard)
	// Flag errors are reported by the second pass.
	_ = fs.Parse(args)

	cfg := DefaultConfig()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	fs = newFlagSet(name, &cfg, &path)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func newFlagSet(name string, cfg *Config, path *string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(path, "config", *path, "YAML configuration file")

	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP server address")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Metrics server address (empty to disable)")
	fs.StringVar(&cfg.PprofAddr, "pprof", cfg.PprofAddr, "pprof server address (empty to disable)")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error, silent)")
	fs.BoolVar(&cfg.LogColor, "log-color", cfg.LogColor, "Enable colored log output")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")

	fs.StringVar(&cfg.Camera.Source, "source", cfg.Camera.Source, "Frame source (synthetic, shm)")
	fs.StringVar(&cfg.Camera.ShmName, "shm", cfg.Camera.ShmName, "Shared memory name")
	fs.DurationVar(&cfg.Camera.ShmOpenTimeout, "shm-timeout", cfg.Camera.ShmOpenTimeout, "How long to wait for shared memory to appear")
	fs.IntVar(&cfg.Camera.Width, "width", cfg.Camera.Width, "Synthetic frame width")
	fs.IntVar(&cfg.Camera.Height, "height", cfg.Camera.Height, "Synthetic frame height")
	fs.IntVar(&cfg.Camera.FPS, "fps", cfg.Camera.FPS, "Synthetic frame rate (0 = unpaced)")

	fs.StringVar(&cfg.Pipeline.Backend, "backend", cfg.Pipeline.Backend, "Processing backend (go, opencv)")
	fs.IntVar(&cfg.Pipeline.Rotation, "rotation", cfg.Pipeline.Rotation, "Initial display rotation in degrees")
	fs.IntVar(&cfg.Pipeline.UIQueueSize, "ui-queue", cfg.Pipeline.UIQueueSize, "Pending display updates before dropping")

	fs.IntVar(&cfg.Monitor.JPEGQuality, "jpeg-quality", cfg.Monitor.JPEGQuality, "JPEG quality (1-100)")
	fs.DurationVar(&cfg.Monitor.StatusInterval, "status-interval", cfg.Monitor.StatusInterval, "Status stream interval")
	fs.StringVar(&cfg.Monitor.RecordPath, "record-path", cfg.Monitor.RecordPath, "Recording output path")
	return fs
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr must not be empty"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout))
	}

	switch c.Camera.Source {
	case SourceSynthetic:
		if c.Camera.Width <= 0 || c.Camera.Height <= 0 || c.Camera.Width%2 != 0 || c.Camera.Height%2 != 0 {
			errs = append(errs, fmt.Errorf("camera size must be positive and even, got %dx%d", c.Camera.Width, c.Camera.Height))
		}
		if c.Camera.FPS < 0 {
			errs = append(errs, fmt.Errorf("camera fps must not be negative, got %d", c.Camera.FPS))
		}
	case SourceSHM:
		if c.Camera.ShmName == "" {
			errs = append(errs, errors.New("camera shm_name must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown camera source %q (want %s or %s)", c.Camera.Source, SourceSynthetic, SourceSHM))
	}

	switch c.Pipeline.Backend {
	case BackendGo, BackendOpenCV:
	default:
		errs = append(errs, fmt.Errorf("unknown pipeline backend %q (want %s or %s)", c.Pipeline.Backend, BackendGo, BackendOpenCV))
	}
	if _, err := types.ParseRotation(c.Pipeline.Rotation); err != nil {
		errs = append(errs, err)
	}
	if c.Pipeline.UIQueueSize < 1 {
		errs = append(errs, fmt.Errorf("ui_queue_size must be at least 1, got %d", c.Pipeline.UIQueueSize))
	}

	if c.Monitor.JPEGQuality < 1 || c.Monitor.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be within 1-100, got %d", c.Monitor.JPEGQuality))
	}
	if c.Monitor.StatusInterval <= 0 {
		errs = append(errs, fmt.Errorf("status_interval must be positive, got %v", c.Monitor.StatusInterval))
	}

	return errors.Join(errs...)
}

// InitialRotation returns the validated initial rotation.
func (c *Config) InitialRotation() types.Rotation {
	r, _ := types.ParseRotation(c.Pipeline.Rotation)
	return r
}
