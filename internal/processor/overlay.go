package processor

import (
	"image"
	"image/color"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/imgproc"
)

// OverlayConfig describes the fixed marker drawn on every output image.
type OverlayConfig struct {
	Rect        image.Rectangle // Outline, OpenCV Rect semantics (Max is exclusive)
	Label       string
	LabelOrigin image.Point // Baseline start of Label
	Color       color.RGBA
	FontScale   int
	Thickness   int
}

// DefaultOverlay is a red 100x100 square at (10,10) with "leftTop"
// written at its top-left corner.
func DefaultOverlay() OverlayConfig {
	return OverlayConfig{
		Rect:        image.Rect(10, 10, 110, 110),
		Label:       "leftTop",
		LabelOrigin: image.Pt(10, 10),
		Color:       color.RGBA{R: 255, A: 255},
		FontScale:   1,
		Thickness:   1,
	}
}

// Annotate draws the overlay onto img in place.
func Annotate(img *imgproc.RGB, o OverlayConfig) {
	if !o.Rect.Empty() {
		imgproc.Rectangle(img, o.Rect, o.Color, o.Thickness)
	}
	if o.Label != "" {
		imgproc.PutText(img, o.Label, o.LabelOrigin, o.FontScale, o.Color)
	}
}
