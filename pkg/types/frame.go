package types

import (
	"fmt"
	"sync"
	"time"
)

// Plane indices for YUVFrame.Planes (YUV_420_888 order)
const (
	PlaneY = 0
	PlaneU = 1
	PlaneV = 2
)

// Plane is one image plane as delivered by the camera.
// len(Data) is the number of bytes remaining in the plane buffer.
type Plane struct {
	Data        []byte // Plane bytes, starting at the first sample
	RowStride   int    // Bytes between the starts of two rows
	PixelStride int    // Bytes between two samples of the same row (1 = planar, 2 = interleaved)
}

// YUVFrame represents a planar YUV 4:2:0 camera frame with metadata.
// The frame must be released exactly once when the consumer is done with it.
type YUVFrame struct {
	Planes    [3]Plane  // Y, U, V
	Width     int       // Frame width in pixels
	Height    int       // Frame height in pixels
	FrameNum  uint64    // Sequential frame number
	Timestamp time.Time // Frame capture timestamp

	releaseOnce sync.Once
	release     func()
}

// NewYUVFrame builds a frame whose Release calls release once.
func NewYUVFrame(planes [3]Plane, width, height int, frameNum uint64, ts time.Time, release func()) *YUVFrame {
	return &YUVFrame{
		Planes:    planes,
		Width:     width,
		Height:    height,
		FrameNum:  frameNum,
		Timestamp: ts,
		release:   release,
	}
}

// Release returns the frame to its source. Later calls are no-ops.
func (f *YUVFrame) Release() {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// Rotation is the display rotation, numbered like the platform Surface.ROTATION_* constants.
type Rotation int

// Rotation constants
const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 1
	Rotation180 Rotation = 2
	Rotation270 Rotation = 3
)

// ParseRotation converts a rotation in degrees to a Rotation.
func ParseRotation(degrees int) (Rotation, error) {
	switch degrees {
	case 0:
		return Rotation0, nil
	case 90:
		return Rotation90, nil
	case 180:
		return Rotation180, nil
	case 270:
		return Rotation270, nil
	default:
		return Rotation0, fmt.Errorf("invalid rotation: %d (want 0, 90, 180 or 270)", degrees)
	}
}

// Degrees returns the rotation in degrees, or -1 for an unknown value.
func (r Rotation) Degrees() int {
	switch r {
	case Rotation0:
		return 0
	case Rotation90:
		return 90
	case Rotation180:
		return 180
	case Rotation270:
		return 270
	default:
		return -1
	}
}

// String returns the string representation of a rotation
func (r Rotation) String() string {
	if d := r.Degrees(); d >= 0 {
		return fmt.Sprintf("%d°", d)
	}
	return fmt.Sprintf("Rotation(%d)", int(r))
}
