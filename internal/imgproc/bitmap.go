package imgproc

import (
	"bytes"
	"image"
	"image/jpeg"
)

// ToRGBA converts img into an opaque ARGB_8888-style bitmap of the same size.
func ToRGBA(img *RGB) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		s := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		d := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			si, di := x*rgbBytesPP, x*4
			d[di], d[di+1], d[di+2], d[di+3] = s[si], s[si+1], s[si+2], 0xFF
		}
	}
	return out
}

// EncodeJPEG encodes img with the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
