//go:build !linux || !cgo

package shm

import (
	"context"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/camera"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// Reader is unavailable without cgo on Linux.
type Reader struct{}

var _ camera.Source = (*Reader)(nil)

// NewReader always fails with ErrUnsupported.
func NewReader(ctx context.Context, shmName string, openTimeout time.Duration) (*Reader, error) {
	return nil, ErrUnsupported
}

// Next implements camera.Source.
func (r *Reader) Next(ctx context.Context) (*types.YUVFrame, error) {
	return nil, ErrUnsupported
}

// Close implements camera.Source.
func (r *Reader) Close() error { return nil }
