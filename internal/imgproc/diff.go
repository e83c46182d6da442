package imgproc

import (
	"fmt"
	"image"
)

// AbsDiff returns a newly allocated image holding |a-b| per channel.
// Neither input is modified.
func AbsDiff(a, b *RGB) (*RGB, error) {
	if a.Rect.Size() != b.Rect.Size() {
		return nil, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, a.Rect.Size(), b.Rect.Size())
	}
	w, h := a.Rect.Dx(), a.Rect.Dy()
	out := NewRGB(image.Rect(0, 0, w, h))
	rowBytes := w * rgbBytesPP
	for y := 0; y < h; y++ {
		ar := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):][:rowBytes]
		br := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):][:rowBytes]
		or := out.Pix[y*out.Stride:][:rowBytes]
		for i := range ar {
			if ar[i] > br[i] {
				or[i] = ar[i] - br[i]
			} else {
				or[i] = br[i] - ar[i]
			}
		}
	}
	return out, nil
}
