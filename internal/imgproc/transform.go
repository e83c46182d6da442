package imgproc

import "image"

// FlipCode selects the flip axis, numbered like OpenCV's flip codes.
type FlipCode int

const (
	FlipVertical   FlipCode = 0  // mirror around the x axis
	FlipHorizontal FlipCode = 1  // mirror around the y axis
	FlipBoth       FlipCode = -1 // both axes, i.e. a 180° rotation
)

// Transpose returns a new image with rows and columns swapped.
func Transpose(src *RGB) *RGB {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := NewRGB(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		s := src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y):]
		for x := 0; x < w; x++ {
			si := x * rgbBytesPP
			di := x*dst.Stride + y*rgbBytesPP
			dst.Pix[di], dst.Pix[di+1], dst.Pix[di+2] = s[si], s[si+1], s[si+2]
		}
	}
	return dst
}

// Flip returns a new image mirrored according to code.
func Flip(src *RGB, code FlipCode) *RGB {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := NewRGB(image.Rect(0, 0, w, h))
	flipX := code != FlipVertical
	flipY := code != FlipHorizontal
	for y := 0; y < h; y++ {
		sy := y
		if flipY {
			sy = h - 1 - y
		}
		s := src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+sy):]
		d := dst.Pix[y*dst.Stride:]
		if !flipX {
			copy(d[:w*rgbBytesPP], s[:w*rgbBytesPP])
			continue
		}
		for x := 0; x < w; x++ {
			si := (w - 1 - x) * rgbBytesPP
			di := x * rgbBytesPP
			d[di], d[di+1], d[di+2] = s[si], s[si+1], s[si+2]
		}
	}
	return dst
}
