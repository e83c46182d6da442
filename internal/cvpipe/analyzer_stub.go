//go:build !opencv

package cvpipe

import (
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/processor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// Analyzer is a placeholder when OpenCV is not compiled in.
type Analyzer struct{}

var _ processor.Analyzer = (*Analyzer)(nil)

// New reports ErrUnavailable.
func New(rotation processor.RotationSource, ui processor.Dispatcher, display processor.Display, opts ...Option) (*Analyzer, error) {
	_ = buildOptions(opts)
	return nil, ErrUnavailable
}

// Analyze releases the frame.
func (a *Analyzer) Analyze(frame *types.YUVFrame) {
	if frame != nil {
		frame.Release()
	}
}

// Close is a no-op.
func (a *Analyzer) Close() error { return nil }
