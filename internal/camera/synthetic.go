package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// Synthetic luma levels
const (
	backgroundLuma = 128
	squareLuma     = 235
	neutralChroma  = 128
)

// SyntheticConfig configures a Synthetic source.
type SyntheticConfig struct {
	Width  int
	Height int
	FPS    int // 0 delivers frames as fast as they are released
}

// Synthetic generates NV21 frames shaped like Android YUV_420_888 images:
// a gray field with a bright square sliding left to right.
type Synthetic struct {
	cfg      SyntheticConfig
	interval time.Duration

	free      chan []byte // single frame buffer, present while no frame is held
	closed    chan struct{}
	closeOnce sync.Once

	// Owned by whoever holds the buffer.
	frameNum uint64
	next     time.Time
}

// NewSynthetic creates a synthetic source.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return nil, fmt.Errorf("synthetic source: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < 0 {
		return nil, fmt.Errorf("synthetic source: invalid fps %d", cfg.FPS)
	}

	s := &Synthetic{
		cfg:    cfg,
		free:   make(chan []byte, 1),
		closed: make(chan struct{}),
	}
	if cfg.FPS > 0 {
		s.interval = time.Second / time.Duration(cfg.FPS)
	}
	s.free <- make([]byte, cfg.Width*cfg.Height*3/2)
	return s, nil
}

// Next implements Source.
func (s *Synthetic) Next(ctx context.Context) (*types.YUVFrame, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var buf []byte
	select {
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case buf = <-s.free:
	}
	// Close may have raced with taking the buffer.
	if s.isClosed() {
		s.free <- buf
		return nil, ErrClosed
	}

	if err := s.pace(ctx); err != nil {
		s.free <- buf
		return nil, err
	}

	num := s.frameNum
	s.frameNum++

	planes := s.render(buf, num)
	return types.NewYUVFrame(planes, s.cfg.Width, s.cfg.Height, num, time.Now(), func() {
		s.free <- buf
	}), nil
}

func (s *Synthetic) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Synthetic) pace(ctx context.Context) error {
	if s.interval == 0 {
		return nil
	}

	now := time.Now()
	if s.next.IsZero() || now.After(s.next.Add(s.interval)) {
		s.next = now
	}
	wait := time.Until(s.next)
	s.next = s.next.Add(s.interval)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// render fills buf and returns Y, U, V planes. U and V are pixel-stride-2
// views into the interleaved VU plane, V starting one byte before U.
func (s *Synthetic) render(buf []byte, num uint64) [3]types.Plane {
	w, h := s.cfg.Width, s.cfg.Height
	ySize := w * h

	side := max(2, min(w, h)/4) &^ 1
	span := max(1, w-side)
	x0 := int(num*8) % span &^ 1
	y0 := (h - side) / 2 &^ 1

	luma := buf[:ySize]
	for y := 0; y < h; y++ {
		row := luma[y*w : (y+1)*w]
		for x := range row {
			row[x] = backgroundLuma
		}
		if y >= y0 && y < y0+side {
			for x := x0; x < x0+side && x < w; x++ {
				row[x] = squareLuma
			}
		}
	}
	chroma := buf[ySize:]
	for i := range chroma {
		chroma[i] = neutralChroma
	}

	return [3]types.Plane{
		types.PlaneY: {Data: luma, RowStride: w, PixelStride: 1},
		types.PlaneU: {Data: buf[ySize+1:], RowStride: w, PixelStride: 2},
		types.PlaneV: {Data: buf[ySize : len(buf)-1], RowStride: w, PixelStride: 2},
	}
}

// Close implements Source.
func (s *Synthetic) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
