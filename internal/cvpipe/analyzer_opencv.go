//go:build opencv

package cvpipe

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/imgproc"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/processor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// Analyzer runs the frame-difference pipeline on OpenCV mats.
// Analyze must be called from a single goroutine.
type Analyzer struct {
	rotation processor.RotationSource
	ui       processor.Dispatcher
	display  processor.Display
	opts     options

	prev    gocv.Mat
	hasPrev bool
}

var _ processor.Analyzer = (*Analyzer)(nil)

// New creates an OpenCV analyzer.
func New(rotation processor.RotationSource, ui processor.Dispatcher, display processor.Display, opts ...Option) (*Analyzer, error) {
	return &Analyzer{
		rotation: rotation,
		ui:       ui,
		display:  display,
		opts:     buildOptions(opts),
		prev:     gocv.NewMat(),
	}, nil
}

// Analyze implements processor.Analyzer.
func (a *Analyzer) Analyze(frame *types.YUVFrame) {
	if frame == nil {
		return
	}
	defer frame.Release()

	m := a.opts.metrics
	if m != nil {
		m.FramesReceived.Add(1)
	}

	start := time.Now()
	bmp, rot, err := a.safeProcess(frame)
	if err != nil {
		if m != nil {
			m.FramesDropped.Add(1)
		}
		a.opts.log.Warnf("Dropping frame %d: %v", frame.FrameNum, err)
		return
	}
	if m != nil {
		m.FramesProcessed.Add(1)
		m.UpdateProcessLatency(time.Since(start))
	}

	info := processor.FrameInfo{FrameNum: frame.FrameNum, Timestamp: frame.Timestamp, Rotation: rot}
	display := a.display
	posted := a.ui.Post(func() { display.SetImage(bmp, info) })
	if m != nil {
		if posted {
			m.DisplayPosted.Add(1)
		} else {
			m.DisplayDropped.Add(1)
		}
	}
}

func (a *Analyzer) safeProcess(frame *types.YUVFrame) (img *image.RGBA, rot types.Rotation, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: %v", processor.ErrFramePanic, r)
		}
	}()
	rot = a.rotation.Rotation()
	img, err = a.Process(frame, rot)
	return img, rot, err
}

// Process converts, rotates, diffs and annotates one frame.
func (a *Analyzer) Process(frame *types.YUVFrame, rot types.Rotation) (*image.RGBA, error) {
	buf, err := imgproc.AssembleNV21(frame.Planes, frame.Width, frame.Height)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	yuv, err := gocv.NewMatFromBytes(frame.Height+frame.Height/2, frame.Width, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		return nil, fmt.Errorf("yuv mat: %w", err)
	}
	defer yuv.Close()

	rgb := gocv.NewMat()
	defer rgb.Close()
	if err := gocv.CvtColor(yuv, &rgb, gocv.ColorYUVToRGBNV21); err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}

	mat, err := fixRotation(rgb, rot)
	if err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}
	defer mat.Close()
	a.opts.log.Debugf("Frame %d: mat width = %d, mat height = %d, rotation = %v",
		frame.FrameNum, mat.Cols(), mat.Rows(), rot)

	if !a.hasPrev || a.prev.Rows() != mat.Rows() || a.prev.Cols() != mat.Cols() {
		if err := mat.CopyTo(&a.prev); err != nil {
			a.hasPrev = false
			return nil, fmt.Errorf("seed previous frame: %w", err)
		}
		a.hasPrev = true
	}

	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.AbsDiff(mat, a.prev, &diff); err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	if err := mat.CopyTo(&a.prev); err != nil {
		a.hasPrev = false
		return nil, fmt.Errorf("store previous frame: %w", err)
	}

	if err := annotate(&diff, a.opts.overlay); err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	return toRGBA(diff), nil
}

// annotate draws the overlay. gocv packs colours into the Scalar as BGR,
// so the channels are swapped for this RGB mat.
func annotate(m *gocv.Mat, o processor.OverlayConfig) error {
	c := color.RGBA{R: o.Color.B, G: o.Color.G, B: o.Color.R, A: o.Color.A}
	thickness := max(o.Thickness, 1)
	if !o.Rect.Empty() {
		if err := gocv.Rectangle(m, o.Rect, c, thickness); err != nil {
			return err
		}
	}
	if o.Label != "" {
		if err := gocv.PutText(m, o.Label, o.LabelOrigin, gocv.FontHersheyPlain, float64(max(o.FontScale, 1)), c, thickness); err != nil {
			return err
		}
	}
	return nil
}

// fixRotation returns a new mat; the caller closes it unless err is set.
func fixRotation(src gocv.Mat, rot types.Rotation) (gocv.Mat, error) {
	dst := gocv.NewMat()
	var err error
	switch rot {
	case types.Rotation90:
		err = src.CopyTo(&dst)
	case types.Rotation270:
		err = gocv.Flip(src, &dst, -1)
	default:
		t := gocv.NewMat()
		defer t.Close()
		if err = gocv.Transpose(src, &t); err == nil {
			err = gocv.Flip(t, &dst, 1)
		}
	}
	if err != nil {
		dst.Close()
		return dst, err
	}
	return dst, nil
}

func toRGBA(m gocv.Mat) *image.RGBA {
	w, h := m.Cols(), m.Rows()
	data := m.ToBytes()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i+2 < len(data) && j+3 < len(out.Pix); i, j = i+3, j+4 {
		out.Pix[j], out.Pix[j+1], out.Pix[j+2], out.Pix[j+3] = data[i], data[i+1], data[i+2], 0xFF
	}
	return out
}

// Reset forgets the previous frame.
func (a *Analyzer) Reset() {
	a.hasPrev = false
}

// Close frees the previous-frame mat.
func (a *Analyzer) Close() error {
	return a.prev.Close()
}
