package processor

import (
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/imgproc"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// FixRotation maps the sensor image to display orientation.
//
// The sensor is mounted for landscape, so ROTATION_90 needs no change and
// portrait (ROTATION_0) is a transpose followed by a horizontal mirror.
// ROTATION_180 and unknown values fall back to the portrait transform.
// The result may share storage with src; callers must not write to it.
func FixRotation(src *imgproc.RGB, rot types.Rotation) *imgproc.RGB {
	switch rot {
	case types.Rotation90:
		return src
	case types.Rotation270:
		return imgproc.Flip(src, imgproc.FlipBoth)
	default:
		return imgproc.Flip(imgproc.Transpose(src), imgproc.FlipHorizontal)
	}
}
