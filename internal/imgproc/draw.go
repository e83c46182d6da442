package imgproc

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Rectangle draws an unfilled rectangle on img. r uses OpenCV Rect semantics:
// the outermost ring touches r.Min and r.Max-(1,1). Thicker lines grow inwards.
// Pixels outside img are skipped.
func Rectangle(img *RGB, r image.Rectangle, c color.RGBA, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r = r.Canon()
	for t := 0; t < thickness; t++ {
		x0, y0 := r.Min.X+t, r.Min.Y+t
		x1, y1 := r.Max.X-1-t, r.Max.Y-1-t
		if x0 > x1 || y0 > y1 {
			return
		}
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y0, c)
			img.SetRGBA(x, y1, c)
		}
		for y := y0; y <= y1; y++ {
			img.SetRGBA(x0, y, c)
			img.SetRGBA(x1, y, c)
		}
	}
}

// PutText renders text with its baseline starting at org, like OpenCV putText.
// scale is an integer pixel multiplier applied to the 7x13 bitmap font.
func PutText(img draw.Image, text string, org image.Point, scale int, c color.Color) {
	face := basicfont.Face7x13
	if scale <= 1 {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(c),
			Face: face,
			Dot:  fixed.P(org.X, org.Y),
		}
		d.DrawString(text)
		return
	}

	b, _ := font.BoundString(face, text)
	r := image.Rect(b.Min.X.Floor(), b.Min.Y.Floor(), b.Max.X.Ceil(), b.Max.Y.Ceil())
	mask := image.NewAlpha(r)
	d := &font.Drawer{Dst: mask, Src: image.Opaque, Face: face}
	d.DrawString(text)

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if mask.AlphaAt(x, y).A < 0x80 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.Set(org.X+x*scale+dx, org.Y+y*scale+dy, c)
				}
			}
		}
	}
}

// TextBounds returns the region PutText would touch for the same arguments.
func TextBounds(text string, org image.Point, scale int) image.Rectangle {
	if scale < 1 {
		scale = 1
	}
	b, _ := font.BoundString(basicfont.Face7x13, text)
	return image.Rect(
		org.X+b.Min.X.Floor()*scale, org.Y+b.Min.Y.Floor()*scale,
		org.X+b.Max.X.Ceil()*scale, org.Y+b.Max.Y.Ceil()*scale,
	)
}
