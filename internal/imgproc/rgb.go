// Package imgproc implements the pixel operations of the diff pipeline:
// NV21 to RGB conversion, orientation transforms, absolute difference
// and the overlay primitives.
package imgproc

import (
	"bytes"
	"image"
	"image/color"
)

const rgbBytesPP = 3

// RGB is a packed 8-bit image with channels ordered R, G, B.
// It is an image.RGBA without the alpha byte.
type RGB struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewRGB returns a new black RGB with the given bounds.
func NewRGB(r image.Rectangle) *RGB {
	w, h := r.Dx(), r.Dy()
	return &RGB{
		Pix:    make([]uint8, rgbBytesPP*w*h),
		Stride: rgbBytesPP * w,
		Rect:   r,
	}
}

// ColorModel returns color.RGBAModel.
func (img *RGB) ColorModel() color.Model { return color.RGBAModel }

// Bounds returns the bounding rectangle.
func (img *RGB) Bounds() image.Rectangle { return img.Rect }

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (img *RGB) PixOffset(x, y int) int {
	return (y-img.Rect.Min.Y)*img.Stride + (x-img.Rect.Min.X)*rgbBytesPP
}

// At returns the pixel at (x, y) as an opaque color.RGBA.
func (img *RGB) At(x, y int) color.Color {
	return img.RGBAAt(x, y)
}

// RGBAAt returns the pixel at (x, y) without going through color.Color.
func (img *RGB) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(img.Rect)) {
		return color.RGBA{}
	}
	i := img.PixOffset(x, y)
	return color.RGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: 0xFF}
}

// Set assigns the pixel at (x, y) the color c. Alpha is dropped.
func (img *RGB) Set(x, y int, c color.Color) {
	img.SetRGBA(x, y, color.RGBAModel.Convert(c).(color.RGBA))
}

// SetRGBA assigns the pixel at (x, y) without a color model conversion.
func (img *RGB) SetRGBA(x, y int, c color.RGBA) {
	if !(image.Point{x, y}.In(img.Rect)) {
		return
	}
	i := img.PixOffset(x, y)
	img.Pix[i], img.Pix[i+1], img.Pix[i+2] = c.R, c.G, c.B
}

// Clone returns a deep copy of img.
func (img *RGB) Clone() *RGB {
	out := &RGB{
		Pix:    make([]uint8, len(img.Pix)),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	copy(out.Pix, img.Pix)
	return out
}

// Equal reports whether both images have the same bounds and pixels.
func (img *RGB) Equal(other *RGB) bool {
	if img.Rect != other.Rect {
		return false
	}
	w := img.Rect.Dx() * rgbBytesPP
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		a := img.Pix[img.PixOffset(img.Rect.Min.X, y):][:w]
		b := other.Pix[other.PixOffset(other.Rect.Min.X, y):][:w]
		if !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

// IsZero reports whether every channel of every pixel is zero.
func (img *RGB) IsZero() bool {
	for _, v := range img.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}
