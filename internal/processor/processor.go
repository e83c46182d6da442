// Package processor turns camera frames into annotated frame-difference
// images and hands them to the display surface on the UI loop.
package processor

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/imgproc"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// ErrFramePanic wraps a panic recovered while processing a frame.
var ErrFramePanic = errors.New("panic while processing frame")

// Analyzer consumes one frame and produces one display update.
// Implementations take ownership of the frame and must release it.
type Analyzer interface {
	Analyze(frame *types.YUVFrame)
}

// RotationSource reports the current display rotation.
type RotationSource interface {
	Rotation() types.Rotation
}

// RotationFunc adapts a function to RotationSource.
type RotationFunc func() types.Rotation

// Rotation implements RotationSource.
func (f RotationFunc) Rotation() types.Rotation { return f() }

// FixedRotation returns a RotationSource that always reports r.
func FixedRotation(r types.Rotation) RotationSource {
	return RotationFunc(func() types.Rotation { return r })
}

// Dispatcher runs work items on the execution context that owns the display.
// Post must not block; it reports whether the item was queued.
type Dispatcher interface {
	Post(fn func()) bool
}

// FrameInfo carries the metadata of the frame an image was computed from.
type FrameInfo struct {
	FrameNum  uint64
	Timestamp time.Time
	Rotation  types.Rotation
}

// Display is the surface that shows processed images. SetImage is only ever
// called from a function posted to the Dispatcher.
type Display interface {
	SetImage(img *image.RGBA, info FrameInfo)
}

// Processor is the per-frame analyzer: NV21 to RGB, orientation fix,
// difference against the previous frame, overlay, display handoff.
//
// Analyze must be called from a single goroutine; the previous frame slot
// is owned by that goroutine and is never shared.
type Processor struct {
	rotation RotationSource
	ui       Dispatcher
	display  Display
	overlay  OverlayConfig
	metrics  *metrics.Metrics
	log      logger.Module

	prev *imgproc.RGB
}

// Option configures a Processor.
type Option func(*Processor)

// WithOverlay replaces the default overlay.
func WithOverlay(o OverlayConfig) Option {
	return func(p *Processor) { p.overlay = o }
}

// WithMetrics enables pipeline counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger sets the module logger.
func WithLogger(l logger.Module) Option {
	return func(p *Processor) { p.log = l }
}

// New creates a Processor reading the rotation from rotation and posting
// display updates through ui.
func New(rotation RotationSource, ui Dispatcher, display Display, opts ...Option) *Processor {
	p := &Processor{
		rotation: rotation,
		ui:       ui,
		display:  display,
		overlay:  DefaultOverlay(),
		log:      logger.ForModule("Processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze implements Analyzer. Failures are logged and the frame is dropped;
// the frame is released on every path.
func (p *Processor) Analyze(frame *types.YUVFrame) {
	if frame == nil {
		return
	}
	defer frame.Release()

	if p.metrics != nil {
		p.metrics.FramesReceived.Add(1)
	}

	start := time.Now()
	bmp, rot, err := p.safeProcess(frame)
	if err != nil {
		if p.metrics != nil {
			p.metrics.FramesDropped.Add(1)
		}
		p.log.Warnf("Dropping frame %d: %v", frame.FrameNum, err)
		return
	}

	if p.metrics != nil {
		p.metrics.FramesProcessed.Add(1)
		p.metrics.UpdateProcessLatency(time.Since(start))
	}

	info := FrameInfo{FrameNum: frame.FrameNum, Timestamp: frame.Timestamp, Rotation: rot}
	display := p.display
	posted := p.ui.Post(func() { display.SetImage(bmp, info) })
	if p.metrics != nil {
		if posted {
			p.metrics.DisplayPosted.Add(1)
		} else {
			p.metrics.DisplayDropped.Add(1)
		}
	}
	if !posted {
		p.log.Debugf("UI queue full, display update for frame %d dropped", frame.FrameNum)
	}
}

func (p *Processor) safeProcess(frame *types.YUVFrame) (img *image.RGBA, rot types.Rotation, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: %v", ErrFramePanic, r)
		}
	}()
	rot = p.rotation.Rotation()
	img, err = p.process(frame, rot)
	return img, rot, err
}

// Process runs the synchronous pipeline for one frame using the current
// rotation and returns the bitmap that would be displayed. It does not
// release the frame.
func (p *Processor) Process(frame *types.YUVFrame) (*image.RGBA, error) {
	return p.process(frame, p.rotation.Rotation())
}

func (p *Processor) process(frame *types.YUVFrame, rot types.Rotation) (*image.RGBA, error) {
	rgb, err := imgproc.FrameToRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}

	mat := FixRotation(rgb, rot)
	p.log.Debugf("Frame %d: width = %d, height = %d, rotation = %v",
		frame.FrameNum, frame.Width, frame.Height, rot)
	p.log.Debugf("Frame %d: mat width = %d, mat height = %d",
		frame.FrameNum, rgb.Rect.Dx(), rgb.Rect.Dy())

	diff, err := p.diffAgainstPrevious(mat)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	Annotate(diff, p.overlay)
	return imgproc.ToRGBA(diff), nil
}

// diffAgainstPrevious computes |cur - prev| and makes cur the new previous
// frame. cur is not written to after this point.
func (p *Processor) diffAgainstPrevious(cur *imgproc.RGB) (*imgproc.RGB, error) {
	if p.prev == nil {
		p.prev = cur
	} else if p.prev.Rect.Size() != cur.Rect.Size() {
		p.log.Infof("Frame size changed %v -> %v, reseeding previous frame",
			p.prev.Rect.Size(), cur.Rect.Size())
		p.prev = cur
	}

	diff, err := imgproc.AbsDiff(cur, p.prev)
	if err != nil {
		return nil, err
	}
	p.prev = cur
	return diff, nil
}

// Reset forgets the previous frame so the next frame yields an all-zero
// difference. It must be called from the goroutine that calls Analyze.
func (p *Processor) Reset() {
	p.prev = nil
}
