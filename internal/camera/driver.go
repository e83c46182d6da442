package camera

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/processor"
)

// DefaultRetryBackoff is the pause after a failed Next.
const DefaultRetryBackoff = 500 * time.Millisecond

// Driver is the dedicated analysis worker. It pulls frames from a Source and
// hands them to an Analyzer one at a time, in arrival order.
type Driver struct {
	source   Source
	analyzer processor.Analyzer
	metrics  *metrics.Metrics
	backoff  time.Duration
	log      logger.Module
}

// NewDriver creates a driver. m may be nil.
func NewDriver(source Source, analyzer processor.Analyzer, m *metrics.Metrics) *Driver {
	return &Driver{
		source:   source,
		analyzer: analyzer,
		metrics:  m,
		backoff:  DefaultRetryBackoff,
		log:      logger.ForModule("Camera"),
	}
}

// SetRetryBackoff changes the pause between failed reads.
func (d *Driver) SetRetryBackoff(backoff time.Duration) {
	d.backoff = backoff
}

// Run blocks until ctx is cancelled or the source is exhausted. It returns
// nil when the source ends with io.EOF or ErrClosed.
func (d *Driver) Run(ctx context.Context) error {
	d.log.Infof("Analysis worker started")
	defer d.log.Infof("Analysis worker stopped")

	for {
		frame, err := d.source.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, io.EOF), errors.Is(err, ErrClosed):
				return nil
			}

			if d.metrics != nil {
				d.metrics.SourceErrors.Add(1)
			}
			d.log.Warnf("Failed to read frame: %v", err)
			if !sleepCtx(ctx, d.backoff) {
				return ctx.Err()
			}
			continue
		}
		if frame == nil {
			continue
		}

		d.analyzer.Analyze(frame)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
