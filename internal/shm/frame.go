// Package shm reads NV12 camera frames from the capture daemon's shared
// memory ring buffer and exposes them as camera frames.
package shm

import (
	"errors"
	"fmt"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

const (
	// DefaultName is the capture daemon's raw frame ring.
	DefaultName = "/pet_camera_frames"

	// Format constants matching shared_memory.h
	FormatJPEG = 0
	FormatNV12 = 1
	FormatRGB  = 2
	FormatH264 = 3

	// Buffer constants
	RingBufferSize = 30
	MaxFrameSize   = 1920 * 1080 * 3 / 2
)

var (
	// ErrUnsupported is returned on platforms without POSIX shared memory.
	ErrUnsupported = errors.New("shared memory source not supported on this platform")
	// ErrNotOpen is returned after Close.
	ErrNotOpen = errors.New("shared memory not open")
)

// header is the metadata of one ring slot.
type header struct {
	FrameNumber uint64
	Timestamp   time.Time
	Width       int
	Height      int
	Format      int
	DataSize    int
}

// filter drops ring slots the analyzer cannot use: non-NV12 frames, frames
// that were already delivered and frames whose size does not match.
type filter struct {
	delivered bool
	last      uint64
}

func (f *filter) accept(h header) error {
	if h.Format != FormatNV12 {
		return fmt.Errorf("format %d is not NV12", h.Format)
	}
	if f.delivered && h.FrameNumber == f.last {
		return errDuplicate
	}
	if h.Width <= 0 || h.Height <= 0 || h.Width%2 != 0 || h.Height%2 != 0 {
		return fmt.Errorf("invalid frame size %dx%d", h.Width, h.Height)
	}
	if want := h.Width * h.Height * 3 / 2; h.DataSize < want {
		return fmt.Errorf("frame %d: %d bytes, need %d", h.FrameNumber, h.DataSize, want)
	}
	f.delivered = true
	f.last = h.FrameNumber
	return nil
}

var errDuplicate = errors.New("frame already delivered")

// newFrame turns an NV12 buffer into a frame with Android-style planes.
// The chroma pairs are swapped in place so that buf becomes NV21, then U and
// V are exposed as pixel-stride-2 views with V one byte ahead of U.
func newFrame(buf []byte, h header, release func()) *types.YUVFrame {
	w, ht := h.Width, h.Height
	ySize := w * ht
	size := ySize * 3 / 2
	buf = buf[:size]

	chroma := buf[ySize:]
	for i := 0; i+1 < len(chroma); i += 2 {
		chroma[i], chroma[i+1] = chroma[i+1], chroma[i]
	}

	planes := [3]types.Plane{
		types.PlaneY: {Data: buf[:ySize], RowStride: w, PixelStride: 1},
		types.PlaneU: {Data: buf[ySize+1:], RowStride: w, PixelStride: 2},
		types.PlaneV: {Data: buf[ySize : size-1], RowStride: w, PixelStride: 2},
	}
	return types.NewYUVFrame(planes, w, ht, h.FrameNumber, h.Timestamp, release)
}
