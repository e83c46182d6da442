package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame pipeline counters
	FramesReceived  atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64 // Frames that failed conversion or drawing
	SourceErrors    atomic.Uint64

	// UI loop counters
	DisplayPosted  atomic.Uint64
	DisplayDropped atomic.Uint64 // Updates dropped because the UI queue was full
	SurfaceUpdates atomic.Uint64

	// Latency tracking
	ProcessLatencyUs atomic.Uint64 // Last frame processing time in microseconds
	FrameLatencyMs   atomic.Uint64 // Capture-to-display latency of the last frame

	// Display clients
	StreamClients atomic.Int64
	TotalClients  atomic.Uint64

	// Recording state
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordingFrames atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

type gaugeDef struct {
	name, help string
	value      func() float64
}

func (m *Metrics) registerPrometheusMetrics() {
	u := func(v *atomic.Uint64) func() float64 {
		return func() float64 { return float64(v.Load()) }
	}

	defs := []gaugeDef{
		{"diffmonitor_frames_received_total", "Total frames delivered by the camera source", u(&m.FramesReceived)},
		{"diffmonitor_frames_processed_total", "Total frames converted, diffed and annotated", u(&m.FramesProcessed)},
		{"diffmonitor_frames_dropped_total", "Total frames dropped on processing errors", u(&m.FramesDropped)},
		{"diffmonitor_source_errors_total", "Total camera source read errors", u(&m.SourceErrors)},
		{"diffmonitor_display_posted_total", "Total display updates posted to the UI loop", u(&m.DisplayPosted)},
		{"diffmonitor_display_dropped_total", "Total display updates dropped by a full UI queue", u(&m.DisplayDropped)},
		{"diffmonitor_surface_updates_total", "Total images applied to the display surface", u(&m.SurfaceUpdates)},
		{"diffmonitor_process_latency_us", "Processing time of the last frame in microseconds", u(&m.ProcessLatencyUs)},
		{"diffmonitor_frame_latency_ms", "Capture to display latency of the last frame in milliseconds", u(&m.FrameLatencyMs)},
		{"diffmonitor_stream_clients", "Number of connected display clients", func() float64 { return float64(m.StreamClients.Load()) }},
		{"diffmonitor_total_clients", "Total display clients connected", u(&m.TotalClients)},
		{"diffmonitor_recording_active", "Recording active (0=inactive, 1=active)", u(&m.RecordingActive)},
		{"diffmonitor_recording_frames", "Total frames written to recording", u(&m.RecordingFrames)},
	}

	for _, d := range defs {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: d.name, Help: d.help},
			d.value,
		))
	}
}

// UpdateProcessLatency records the processing time of the last frame
func (m *Metrics) UpdateProcessLatency(d time.Duration) {
	m.ProcessLatencyUs.Store(uint64(d.Microseconds()))
}

// UpdateFrameLatency records the delay between capture and display
func (m *Metrics) UpdateFrameLatency(captureTime time.Time) {
	if captureTime.IsZero() {
		return
	}
	if latency := time.Since(captureTime).Milliseconds(); latency >= 0 {
		m.FrameLatencyMs.Store(uint64(latency))
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
