package webmonitor

import (
	"image"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/imgproc"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/processor"
)

// FrameSink receives every JPEG shown on the surface.
type FrameSink interface {
	SendFrame(jpeg []byte) bool
}

const fpsWindow = 30

// Surface is the display: it holds the last image set by the processor and
// republishes it to stream clients. All methods except NewSurface must be
// called on the UI loop.
type Surface struct {
	quality     int
	broadcaster *FrameBroadcaster
	sinks       []FrameSink
	metrics     *metrics.Metrics
	log         logger.Module

	jpeg    []byte
	info    processor.FrameInfo
	width   int
	height  int
	updates uint64
	times   [fpsWindow]time.Time
	last    time.Time
}

var _ processor.Display = (*Surface)(nil)

// NewSurface creates a surface encoding JPEGs at quality. m may be nil.
func NewSurface(quality int, b *FrameBroadcaster, m *metrics.Metrics, sinks ...FrameSink) *Surface {
	return &Surface{
		quality:     quality,
		broadcaster: b,
		sinks:       sinks,
		metrics:     m,
		log:         logger.ForModule("Surface"),
	}
}

// SetImage implements processor.Display.
func (s *Surface) SetImage(img *image.RGBA, info processor.FrameInfo) {
	data, err := imgproc.EncodeJPEG(img, s.quality)
	if err != nil {
		s.log.Errorf("JPEG encode failed for frame %d: %v", info.FrameNum, err)
		return
	}

	now := time.Now()
	s.jpeg = data
	s.info = info
	s.width, s.height = img.Bounds().Dx(), img.Bounds().Dy()
	s.times[s.updates%fpsWindow] = now
	s.updates++
	s.last = now

	if s.metrics != nil {
		s.metrics.SurfaceUpdates.Add(1)
		s.metrics.UpdateFrameLatency(info.Timestamp)
	}

	if s.broadcaster != nil {
		s.broadcaster.Publish(data)
	}
	for _, sink := range s.sinks {
		sink.SendFrame(data)
	}
}

// Snapshot returns the current JPEG (nil before the first image) and stats.
// The returned slice is never modified.
func (s *Surface) Snapshot() ([]byte, SurfaceStats) {
	return s.jpeg, SurfaceStats{
		HasFrame:    s.jpeg != nil,
		Width:       s.width,
		Height:      s.height,
		FrameNumber: s.info.FrameNum,
		Rotation:    s.info.Rotation.Degrees(),
		Updates:     s.updates,
		CurrentFPS:  s.currentFPS(),
		JPEGBytes:   len(s.jpeg),
		LastUpdate:  s.last,
	}
}

func (s *Surface) currentFPS() float64 {
	n := min(s.updates, fpsWindow)
	if n < 2 {
		return 0
	}
	newest := s.times[(s.updates-1)%fpsWindow]
	oldest := s.times[(s.updates-n)%fpsWindow]
	span := newest.Sub(oldest).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(n-1) / span
}
