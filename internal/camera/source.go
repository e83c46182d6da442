// Package camera defines the frame source abstraction and the worker that
// feeds frames from a source to an analyzer.
package camera

import (
	"context"
	"errors"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// ErrClosed is returned by Next after the source has been closed.
var ErrClosed = errors.New("camera source closed")

// Source delivers camera frames. Next blocks until a frame is available or
// ctx is done. A source holds at most one outstanding frame: Next does not
// return a new frame until the previous one has been released.
type Source interface {
	Next(ctx context.Context) (*types.YUVFrame, error)
	Close() error
}
