// Package cvpipe is an OpenCV-backed alternative to the pure Go frame
// processor. It is compiled only with the opencv build tag; otherwise New
// returns ErrUnavailable.
package cvpipe

import (
	"errors"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/processor"
)

// ErrUnavailable is returned by New when the binary was built without OpenCV.
var ErrUnavailable = errors.New("opencv backend not compiled in (build with -tags opencv)")

type options struct {
	overlay processor.OverlayConfig
	metrics *metrics.Metrics
	log     logger.Module
}

// Option configures an Analyzer.
type Option func(*options)

// WithOverlay replaces the default overlay.
func WithOverlay(o processor.OverlayConfig) Option {
	return func(opts *options) { opts.overlay = o }
}

// WithMetrics enables pipeline counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *options) { opts.metrics = m }
}

// WithLogger sets the module logger.
func WithLogger(l logger.Module) Option {
	return func(opts *options) { opts.log = l }
}

func buildOptions(opts []Option) options {
	o := options{
		overlay: processor.DefaultOverlay(),
		log:     logger.ForModule("OpenCV"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
