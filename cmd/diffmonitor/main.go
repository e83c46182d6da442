package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/camera"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/cvpipe"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/processor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/recorder"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/shm"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/ui"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/webmonitor"
)

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger.Init(cfg.LogLevel, os.Stderr, cfg.LogColor)
	logger.Info("Main", "Diff monitor starting...")
	logger.Info("Main", "Log level: %s", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create diff monitor: %v", err)
	}

	app.Start(ctx)

	<-ctx.Done()
	logger.Info("Main", "Shutting down...")

	if err := app.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}
	logger.Info("Main", "Diff monitor stopped")
}

// App wires the camera source, the analysis worker, the UI loop and the
// HTTP surfaces together.
type App struct {
	cfg *config.Config
	wg  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	metrics  *metrics.Metrics
	source   camera.Source
	analyzer processor.Analyzer
	closer   func() error // releases backend resources, may be nil
	driver   *camera.Driver
	loop     *ui.Loop
	recorder *recorder.Recorder
	monitor  *webmonitor.Server

	httpServer  *http.Server
	pprofServer *http.Server
}

// NewApp builds every component. ctx bounds waiting for the frame source.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	m := metrics.New()

	source, err := openSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame source: %w", err)
	}

	if err := os.MkdirAll(cfg.Monitor.RecordPath, 0755); err != nil {
		source.Close()
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	loop := ui.New(cfg.Pipeline.UIQueueSize)
	rotation := webmonitor.NewRotationState(cfg.InitialRotation())
	broadcaster := webmonitor.NewFrameBroadcaster(m)
	rec := recorder.NewRecorder(cfg.Monitor.RecordPath, m)
	surface := webmonitor.NewSurface(cfg.Monitor.JPEGQuality, broadcaster, m, rec)

	app := &App{
		cfg:      cfg,
		metrics:  m,
		source:   source,
		loop:     loop,
		recorder: rec,
	}

	switch cfg.Pipeline.Backend {
	case config.BackendOpenCV:
		a, err := cvpipe.New(rotation, loop, surface, cvpipe.WithMetrics(m))
		if err != nil {
			source.Close()
			return nil, fmt.Errorf("failed to create OpenCV backend: %w", err)
		}
		app.analyzer, app.closer = a, a.Close
	default:
		app.analyzer = processor.New(rotation, loop, surface, processor.WithMetrics(m))
	}
	app.driver = camera.NewDriver(source, app.analyzer, m)

	webCfg := webmonitor.DefaultConfig()
	webCfg.StatusInterval = cfg.Monitor.StatusInterval
	app.monitor = webmonitor.NewServer(webCfg, webmonitor.Deps{
		Loop:        loop,
		Surface:     surface,
		Broadcaster: broadcaster,
		Rotation:    rotation,
		Recorder:    rec,
		Metrics:     m,
	})

	app.httpServer = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: app.monitor.Handler(),
	}
	if cfg.PprofAddr != "" {
		app.pprofServer = &http.Server{
			Addr:    cfg.PprofAddr,
			Handler: http.DefaultServeMux,
		}
	}
	return app, nil
}

func openSource(ctx context.Context, cfg *config.Config) (camera.Source, error) {
	switch cfg.Camera.Source {
	case config.SourceSHM:
		logger.Info("Main", "Waiting for shared memory %s (timeout %v)", cfg.Camera.ShmName, cfg.Camera.ShmOpenTimeout)
		return shm.NewReader(ctx, cfg.Camera.ShmName, cfg.Camera.ShmOpenTimeout)
	default:
		return camera.NewSynthetic(camera.SyntheticConfig{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		})
	}
}

// Start launches the UI loop, the analysis worker and the HTTP servers.
func (a *App) Start(parent context.Context) {
	a.ctx, a.cancel = context.WithCancel(parent)

	logger.Info("Main", "Starting diff monitor...")
	logger.Info("Main", "  Source: %s", a.cfg.Camera.Source)
	logger.Info("Main", "  Backend: %s", a.cfg.Pipeline.Backend)
	logger.Info("Main", "  Rotation: %d°", a.cfg.Pipeline.Rotation)
	logger.Info("Main", "  HTTP server: %s", a.cfg.HTTPAddr)
	logger.Info("Main", "  Metrics server: %s", a.cfg.MetricsAddr)
	logger.Info("Main", "  Recording path: %s", a.cfg.Monitor.RecordPath)

	if a.pprofServer != nil {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", a.pprofServer.Addr)
			if err := a.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	if a.cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", a.cfg.MetricsAddr)
			if err := a.metrics.StartServer(a.cfg.MetricsAddr); err != nil {
				logger.Warn("Main", "Metrics server error: %v", err)
			}
		}()
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.loop.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Main", "UI loop stopped: %v", err)
		}
	}()
	go func() {
		defer a.wg.Done()
		if err := a.driver.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Main", "Analysis worker stopped: %v", err)
		}
	}()

	a.monitor.Start()
	go func() {
		logger.Info("Main", "Starting HTTP server on %s", a.cfg.HTTPAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "HTTP server error: %v", err)
			a.cancel()
		}
	}()

	logger.Info("Main", "Diff monitor started successfully")
}

// Shutdown stops the HTTP servers first, then the worker and the UI loop,
// and finally closes the recorder and the frame source.
func (a *App) Shutdown() error {
	var errs []error

	a.monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if a.pprofServer != nil {
		if err := a.pprofServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("pprof server: %w", err))
		}
	}

	a.cancel()
	// Unblocks a source waiting for a frame.
	if err := a.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("frame source: %w", err))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.cfg.ShutdownTimeout):
		errs = append(errs, errors.New("timed out waiting for workers"))
	}

	if a.closer != nil {
		if err := a.closer(); err != nil {
			errs = append(errs, fmt.Errorf("backend: %w", err))
		}
	}
	if err := a.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}

	return errors.Join(errs...)
}
