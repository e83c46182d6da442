package processor

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/imgproc"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

type inlineDispatcher struct {
	posted int
	full   bool
}

func (d *inlineDispatcher) Post(fn func()) bool {
	if d.full {
		return false
	}
	d.posted++
	fn()
	return true
}

type recordingDisplay struct {
	images []*image.RGBA
	infos  []FrameInfo
}

func (d *recordingDisplay) SetImage(img *image.RGBA, info FrameInfo) {
	d.images = append(d.images, img)
	d.infos = append(d.infos, info)
}

// grayFrame builds a solid-luma frame in the interleaved VU layout Android
// cameras use. released counts calls to the frame's release function.
func grayFrame(w, h int, luma byte, num uint64, released *int) *types.YUVFrame {
	ySize := w * h
	buf := make([]byte, ySize+ySize/2)
	for i := 0; i < ySize; i++ {
		buf[i] = luma
	}
	for i := ySize; i < len(buf); i++ {
		buf[i] = 128
	}
	planes := [3]types.Plane{
		{Data: buf[:ySize], RowStride: w, PixelStride: 1},
		{Data: buf[ySize+1:], RowStride: w, PixelStride: 2},
		{Data: buf[ySize : len(buf)-1], RowStride: w, PixelStride: 2},
	}
	return types.NewYUVFrame(planes, w, h, num, time.Now(), func() {
		if released != nil {
			*released++
		}
	})
}

var red = color.RGBA{R: 255, A: 255}

func TestFirstFrameIsBlackWithOverlay(t *testing.T) {
	ui := &inlineDispatcher{}
	disp := &recordingDisplay{}
	p := New(FixedRotation(types.Rotation90), ui, disp)

	p.Analyze(grayFrame(160, 120, 128, 1, nil))

	if len(disp.images) != 1 {
		t.Fatalf("display got %d images, want 1", len(disp.images))
	}
	img := disp.images[0]
	if img.Bounds().Dx() != 160 || img.Bounds().Dy() != 120 {
		t.Fatalf("bounds = %v, want 160x120", img.Bounds())
	}

	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"inside box", 50, 50, color.RGBA{A: 255}},
		{"outside box", 150, 115, color.RGBA{A: 255}},
		{"top-left corner", 10, 10, red},
		{"left edge", 10, 60, red},
		{"bottom-right corner", 109, 109, red},
		{"past bottom-right", 110, 110, color.RGBA{A: 255}},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("%s: pixel (%d,%d) = %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}

	labelled := 0
	for y := 0; y < 10; y++ {
		for x := 10; x < 60; x++ {
			if img.RGBAAt(x, y) == red {
				labelled++
			}
		}
	}
	if labelled == 0 {
		t.Error("no label pixels above the box")
	}

	if disp.infos[0].FrameNum != 1 || disp.infos[0].Rotation != types.Rotation90 {
		t.Errorf("info = %+v", disp.infos[0])
	}
}

func TestDifferenceBetweenFrames(t *testing.T) {
	disp := &recordingDisplay{}
	p := New(FixedRotation(types.Rotation90), &inlineDispatcher{}, disp, WithOverlay(OverlayConfig{}))

	p.Analyze(grayFrame(64, 48, 128, 1, nil))
	p.Analyze(grayFrame(64, 48, 16, 2, nil))
	p.Analyze(grayFrame(64, 48, 16, 3, nil))

	if len(disp.images) != 3 {
		t.Fatalf("display got %d images, want 3", len(disp.images))
	}
	if got := disp.images[1].RGBAAt(20, 20); got != (color.RGBA{130, 130, 130, 255}) {
		t.Errorf("diff of gray and black = %v, want 130 gray", got)
	}
	for i, img := range []*image.RGBA{disp.images[0], disp.images[2]} {
		for j := 0; j < len(img.Pix); j += 4 {
			if img.Pix[j] != 0 || img.Pix[j+1] != 0 || img.Pix[j+2] != 0 {
				t.Fatalf("image %d not black at byte %d", i, j)
			}
		}
	}
}

func TestRotationOutputSize(t *testing.T) {
	tests := []struct {
		rot  types.Rotation
		w, h int
	}{
		{types.Rotation0, 48, 64},
		{types.Rotation90, 64, 48},
		{types.Rotation180, 48, 64},
		{types.Rotation270, 64, 48},
		{types.Rotation(7), 48, 64},
	}
	for _, tt := range tests {
		disp := &recordingDisplay{}
		p := New(FixedRotation(tt.rot), &inlineDispatcher{}, disp)
		p.Analyze(grayFrame(64, 48, 100, 1, nil))
		if len(disp.images) != 1 {
			t.Fatalf("%v: no image", tt.rot)
		}
		b := disp.images[0].Bounds()
		if b.Dx() != tt.w || b.Dy() != tt.h {
			t.Errorf("%v: size %dx%d, want %dx%d", tt.rot, b.Dx(), b.Dy(), tt.w, tt.h)
		}
	}
}

func TestFrameReleasedExactlyOnce(t *testing.T) {
	panicking := RotationFunc(func() types.Rotation { panic("sensor gone") })

	tests := []struct {
		name     string
		rotation RotationSource
		w, h     int
		dropped  uint64
	}{
		{"success", FixedRotation(types.Rotation0), 32, 32, 0},
		{"conversion failure", FixedRotation(types.Rotation0), 31, 32, 1},
		{"panic", panicking, 32, 32, 1},
	}
	for _, tt := range tests {
		m := metrics.New()
		disp := &recordingDisplay{}
		p := New(tt.rotation, &inlineDispatcher{}, disp, WithMetrics(m))

		released := 0
		p.Analyze(grayFrame(tt.w, tt.h, 90, 1, &released))

		if released != 1 {
			t.Errorf("%s: released %d times, want 1", tt.name, released)
		}
		if got := m.FramesDropped.Load(); got != tt.dropped {
			t.Errorf("%s: FramesDropped = %d, want %d", tt.name, got, tt.dropped)
		}
		if tt.dropped > 0 && len(disp.images) != 0 {
			t.Errorf("%s: dropped frame reached the display", tt.name)
		}
	}
}

func TestFullUIQueueDropsUpdate(t *testing.T) {
	m := metrics.New()
	disp := &recordingDisplay{}
	p := New(FixedRotation(types.Rotation90), &inlineDispatcher{full: true}, disp, WithMetrics(m))

	released := 0
	p.Analyze(grayFrame(32, 32, 90, 1, &released))

	if len(disp.images) != 0 {
		t.Fatal("display updated despite full queue")
	}
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}
	if m.DisplayDropped.Load() != 1 || m.DisplayPosted.Load() != 0 {
		t.Errorf("posted=%d dropped=%d", m.DisplayPosted.Load(), m.DisplayDropped.Load())
	}
	if m.FramesProcessed.Load() != 1 {
		t.Errorf("FramesProcessed = %d, want 1", m.FramesProcessed.Load())
	}
}

func TestResolutionChangeReseeds(t *testing.T) {
	disp := &recordingDisplay{}
	p := New(FixedRotation(types.Rotation90), &inlineDispatcher{}, disp, WithOverlay(OverlayConfig{}))

	p.Analyze(grayFrame(64, 48, 200, 1, nil))
	released := 0
	p.Analyze(grayFrame(32, 24, 40, 2, &released))

	if len(disp.images) != 2 {
		t.Fatalf("display got %d images, want 2", len(disp.images))
	}
	img := disp.images[1]
	if img.Bounds().Dx() != 32 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	if got := img.RGBAAt(5, 5); got != (color.RGBA{A: 255}) {
		t.Errorf("reseeded frame diff = %v, want black", got)
	}
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}
}

func TestOutputDoesNotAliasPreviousFrame(t *testing.T) {
	p := New(FixedRotation(types.Rotation90), &inlineDispatcher{}, &recordingDisplay{})

	first := grayFrame(160, 120, 128, 1, nil)
	out, err := p.Process(first)
	if err != nil {
		t.Fatal(err)
	}
	for i := range out.Pix {
		out.Pix[i] = 0xff
	}

	out, err = p.Process(grayFrame(160, 120, 128, 2, nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := out.RGBAAt(50, 50); got != (color.RGBA{A: 255}) {
		t.Errorf("pixel inside box = %v, want black", got)
	}
	if got := out.RGBAAt(140, 20); got != (color.RGBA{A: 255}) {
		t.Errorf("pixel outside box = %v, want black", got)
	}
}

func TestReset(t *testing.T) {
	p := New(FixedRotation(types.Rotation90), &inlineDispatcher{}, &recordingDisplay{}, WithOverlay(OverlayConfig{}))
	if _, err := p.Process(grayFrame(32, 32, 235, 1, nil)); err != nil {
		t.Fatal(err)
	}
	p.Reset()
	out, err := p.Process(grayFrame(32, 32, 16, 2, nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := out.RGBAAt(3, 3); got != (color.RGBA{A: 255}) {
		t.Errorf("after Reset pixel = %v, want black", got)
	}
}

// patternFrame is like grayFrame with per-pixel luma. Chroma is neutral, so
// every difference pixel is gray and never equals the overlay colour.
func patternFrame(w, h int, num uint64, luma func(x, y int) byte) *types.YUVFrame {
	f := grayFrame(w, h, 0, num, nil)
	y := f.Planes[types.PlaneY]
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			y.Data[row*y.RowStride+col] = luma(col, row)
		}
	}
	return f
}

func overlayPixels(img *image.RGBA) map[image.Point]bool {
	set := make(map[image.Point]bool)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == red {
				set[image.Pt(x, y)] = true
			}
		}
	}
	return set
}

func TestOverlayIndependentOfContent(t *testing.T) {
	const w, h = 160, 120
	pairs := []struct {
		name          string
		first, second func(x, y int) byte
	}{
		{
			name:   "gradients",
			first:  func(x, y int) byte { return byte(x + y) },
			second: func(x, y int) byte { return byte(255 - x) },
		},
		{
			name:   "checkerboard",
			first:  func(x, y int) byte { return byte(((x/8 + y/8) % 2) * 200) },
			second: func(x, y int) byte { return byte((x * y) % 251) },
		},
	}

	ref := imgproc.NewRGB(image.Rect(0, 0, w, h))
	Annotate(ref, DefaultOverlay())
	want := overlayPixels(imgproc.ToRGBA(ref))
	if len(want) == 0 {
		t.Fatal("reference overlay is empty")
	}

	for _, tt := range pairs {
		t.Run(tt.name, func(t *testing.T) {
			disp := &recordingDisplay{}
			p := New(FixedRotation(types.Rotation90), &inlineDispatcher{}, disp)
			p.Analyze(patternFrame(w, h, 1, tt.first))
			p.Analyze(patternFrame(w, h, 2, tt.second))
			if len(disp.images) != 2 {
				t.Fatalf("display got %d images, want 2", len(disp.images))
			}

			got := overlayPixels(disp.images[1])
			if len(got) != len(want) {
				t.Fatalf("overlay has %d pixels, want %d", len(got), len(want))
			}
			for pt := range want {
				if !got[pt] {
					t.Fatalf("overlay pixel %v missing", pt)
				}
			}
			if disp.images[1].RGBAAt(50, 50) == (color.RGBA{A: 255}) {
				t.Error("content difference not visible inside the box")
			}
		})
	}
}

func TestFixRotationIdentityReturnsInput(t *testing.T) {
	src := imgproc.NewRGB(image.Rect(0, 0, 4, 2))
	if got := FixRotation(src, types.Rotation90); got != src {
		t.Fatalf("FixRotation(90) = %p, want the input %p", got, src)
	}
	if got := FixRotation(src, types.Rotation0); got == src {
		t.Fatal("FixRotation(0) returned the input")
	}
}
