package imgproc

import (
	"errors"
	"fmt"
	"image"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

var (
	// ErrInvalidDimensions is returned for non-positive or odd frame dimensions.
	ErrInvalidDimensions = errors.New("imgproc: invalid frame dimensions")
	// ErrShortBuffer is returned when the planes hold fewer bytes than the frame needs.
	ErrShortBuffer = errors.New("imgproc: plane data too short")
	// ErrSizeMismatch is returned when two images that must match do not.
	ErrSizeMismatch = errors.New("imgproc: image size mismatch")
)

// BT.601 limited range YUV->RGB fixed point coefficients (20-bit shift),
// the same values OpenCV uses for COLOR_YUV2RGB_NV21.
const (
	yuvShift = 20
	yuvHalf  = 1 << (yuvShift - 1)
	coefCY   = 1220542
	coefCUB  = 2116026
	coefCUG  = -409993
	coefCVG  = -852492
	coefCVR  = 1673527
)

// NV21Size returns the byte length of a width x height NV21 buffer.
func NV21Size(width, height int) int {
	return width * (height + height/2)
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return nil
}

// AssembleNV21 reassembles YUV_420_888 planes into one NV21 buffer laid out
// as [Y][V][U] with height+height/2 rows of width bytes.
//
// When the chroma planes are interleaved views (pixel stride 2) the V plane
// already reads V,U,V,U... so the planes are concatenated as they are and the
// result is cut to the NV21 length. Fully planar chroma (pixel stride 1) is
// interleaved sample by sample instead. Rows padded beyond their packed
// length (RowStride > width) are compacted first.
func AssembleNV21(planes [3]types.Plane, width, height int) ([]byte, error) {
	if err := checkDimensions(width, height); err != nil {
		return nil, err
	}

	need := NV21Size(width, height)
	out := make([]byte, 0, need)

	y := packRows(planes[types.PlaneY], width, height)
	if len(y) < width*height {
		return nil, fmt.Errorf("%w: luma has %d bytes, need %d", ErrShortBuffer, len(y), width*height)
	}
	out = append(out, y[:width*height]...)

	u, v := planes[types.PlaneU], planes[types.PlaneV]
	if u.PixelStride <= 1 && v.PixelStride <= 1 {
		vu, err := interleaveChroma(v, u, width/2, height/2)
		if err != nil {
			return nil, err
		}
		return append(out, vu...), nil
	}

	out = append(out, packRows(v, width, height/2)...)
	if len(out) < need {
		out = append(out, packRows(u, width, height/2)...)
	}
	if len(out) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(out), need)
	}
	return out[:need], nil
}

// packRows drops the padding at the end of each row when RowStride exceeds rowBytes.
func packRows(p types.Plane, rowBytes, rows int) []byte {
	if p.RowStride <= rowBytes || rows <= 1 {
		return p.Data
	}
	out := make([]byte, 0, rowBytes*rows)
	for r := 0; r < rows; r++ {
		start := r * p.RowStride
		if start >= len(p.Data) {
			break
		}
		end := min(start+rowBytes, len(p.Data))
		out = append(out, p.Data[start:end]...)
	}
	return out
}

func interleaveChroma(v, u types.Plane, cw, ch int) ([]byte, error) {
	vStride, uStride := max(v.RowStride, cw), max(u.RowStride, cw)
	if len(v.Data) < (ch-1)*vStride+cw || len(u.Data) < (ch-1)*uStride+cw {
		return nil, fmt.Errorf("%w: planar chroma smaller than %dx%d", ErrShortBuffer, cw, ch)
	}
	vu := make([]byte, 2*cw*ch)
	i := 0
	for r := 0; r < ch; r++ {
		vr := v.Data[r*vStride:]
		ur := u.Data[r*uStride:]
		for c := 0; c < cw; c++ {
			vu[i] = vr[c]
			vu[i+1] = ur[c]
			i += 2
		}
	}
	return vu, nil
}

// NV21ToRGB converts a semi-planar NV21 buffer (Y plane followed by
// interleaved V,U samples) into a packed RGB image of width x height.
func NV21ToRGB(buf []byte, width, height int) (*RGB, error) {
	if err := checkDimensions(width, height); err != nil {
		return nil, err
	}
	if len(buf) < NV21Size(width, height) {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(buf), NV21Size(width, height))
	}

	img := NewRGB(image.Rect(0, 0, width, height))
	yPlane := buf[:width*height]
	vuPlane := buf[width*height:]

	for row := 0; row < height; row++ {
		yRow := yPlane[row*width : (row+1)*width]
		vuRow := vuPlane[(row/2)*width:]
		dst := img.Pix[row*img.Stride:]
		for col := 0; col < width; col += 2 {
			v := int(vuRow[col]) - 128
			u := int(vuRow[col+1]) - 128

			ruv := yuvHalf + coefCVR*v
			guv := yuvHalf + coefCVG*v + coefCUG*u
			buv := yuvHalf + coefCUB*u

			for k := 0; k < 2; k++ {
				y := max(0, int(yRow[col+k])-16) * coefCY
				o := (col + k) * rgbBytesPP
				dst[o] = saturate((y + ruv) >> yuvShift)
				dst[o+1] = saturate((y + guv) >> yuvShift)
				dst[o+2] = saturate((y + buv) >> yuvShift)
			}
		}
	}
	return img, nil
}

// FrameToRGB runs AssembleNV21 and NV21ToRGB on a camera frame.
func FrameToRGB(frame *types.YUVFrame) (*RGB, error) {
	nv21, err := AssembleNV21(frame.Planes, frame.Width, frame.Height)
	if err != nil {
		return nil, fmt.Errorf("assemble frame %d: %w", frame.FrameNum, err)
	}
	return NV21ToRGB(nv21, frame.Width, frame.Height)
}

func saturate(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
