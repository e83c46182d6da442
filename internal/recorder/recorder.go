// Package recorder writes displayed JPEG frames to Motion JPEG files.
package recorder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// frameBuffer is the number of frames queued for the writer (about 2 s at 30 fps)
const frameBuffer = 60

// Recorder appends JPEG frames to recording_<timestamp>.mjpeg
type Recorder struct {
	mu       sync.RWMutex
	basePath string
	active   *session // nil when not recording
	last     *session // most recent recording, for Status

	metrics *metrics.Metrics
	log     logger.Module
}

// session is one recording. Counters are guarded by Recorder.mu.
type session struct {
	id        string
	filename  string
	file      *os.File
	startTime time.Time
	stopTime  time.Time

	frames   chan []byte
	done     chan struct{} // closed by Stop
	finished chan struct{} // closed by the writer after draining

	frameCount   uint64
	droppedCount uint64
	bytesWritten uint64
}

// NewRecorder creates a recorder writing into basePath. m may be nil.
func NewRecorder(basePath string, m *metrics.Metrics) *Recorder {
	return &Recorder{
		basePath: basePath,
		metrics:  m,
		log:      logger.ForModule("Recorder"),
	}
}

// Start starts recording to a new file
func (r *Recorder) Start() (RecordingStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return RecordingStatus{}, ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return RecordingStatus{}, fmt.Errorf("failed to create recording directory: %w", err)
	}

	now := time.Now()
	file, filename, err := createFile(r.basePath, "recording_"+now.Format("20060102_150405.000"))
	if err != nil {
		return RecordingStatus{}, fmt.Errorf("failed to create file: %w", err)
	}

	sess := &session{
		id:        uuid.NewString(),
		filename:  filename,
		file:      file,
		startTime: now,
		frames:    make(chan []byte, frameBuffer),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	r.active, r.last = sess, sess

	if r.metrics != nil {
		r.metrics.RecordingActive.Store(1)
	}

	go r.writeFrames(sess)

	r.log.Infof("Recording %s started (%s)", sess.id, filename)
	return r.statusLocked(), nil
}

// createFile creates base.mjpeg, or base_N.mjpeg when that name is taken.
func createFile(dir, base string) (*os.File, string, error) {
	name := base + ".mjpeg"
	for n := 1; ; n++ {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) || n > 100 {
			return nil, "", err
		}
		name = fmt.Sprintf("%s_%d.mjpeg", base, n)
	}
}

// Stop stops recording and returns the final status. A new recording may
// be started while this one drains.
func (r *Recorder) Stop() (RecordingStatus, error) {
	r.mu.Lock()
	sess := r.active
	if sess == nil {
		r.mu.Unlock()
		return RecordingStatus{}, ErrNotRecording
	}
	r.active = nil
	close(sess.done)
	if r.metrics != nil {
		r.metrics.RecordingActive.Store(0)
	}
	r.mu.Unlock()

	// Wait for write goroutine to drain
	<-sess.finished

	var closeErr error
	if err := sess.file.Sync(); err != nil {
		closeErr = fmt.Errorf("failed to sync file: %w", err)
	}
	if err := sess.file.Close(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("failed to close file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sess.stopTime = time.Now()
	status := sess.status(false)

	r.log.Infof("Recording %s stopped: %d frames, %d bytes, %d dropped",
		sess.id, sess.frameCount, sess.bytesWritten, sess.droppedCount)
	return status, closeErr
}

// SendFrame queues a JPEG frame (non-blocking). It returns false when not
// recording or when the queue is full.
func (r *Recorder) SendFrame(jpeg []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.active
	if sess == nil {
		return false
	}

	select {
	case sess.frames <- jpeg:
		return true
	default:
		sess.droppedCount++
		return false
	}
}

func (r *Recorder) writeFrames(sess *session) {
	defer close(sess.finished)

	for {
		select {
		case frame := <-sess.frames:
			r.writeFrame(sess, frame)
		case <-sess.done:
			for {
				select {
				case frame := <-sess.frames:
					r.writeFrame(sess, frame)
				default:
					return
				}
			}
		}
	}
}

// writeFrame writes one JPEG; MJPEG is the plain concatenation of JPEGs.
func (r *Recorder) writeFrame(sess *session, frame []byte) {
	n, err := sess.file.Write(frame)

	r.mu.Lock()
	defer r.mu.Unlock()
	sess.bytesWritten += uint64(n)
	if err != nil {
		r.log.Errorf("Write failed: %v", err)
		return
	}
	sess.frameCount++
	if r.metrics != nil {
		r.metrics.RecordingFrames.Add(1)
	}
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active != nil
}

// Status returns the status of the active recording, or of the last one
// when idle.
func (r *Recorder) Status() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statusLocked()
}

func (r *Recorder) statusLocked() RecordingStatus {
	if r.active != nil {
		return r.active.status(true)
	}
	if r.last != nil {
		return r.last.status(false)
	}
	return RecordingStatus{}
}

func (s *session) status(recording bool) RecordingStatus {
	var duration time.Duration
	switch {
	case recording:
		duration = time.Since(s.startTime)
	case !s.stopTime.IsZero():
		duration = s.stopTime.Sub(s.startTime)
	}
	return RecordingStatus{
		ID:           s.id,
		Recording:    recording,
		Filename:     s.filename,
		FrameCount:   s.frameCount,
		DroppedCount: s.droppedCount,
		BytesWritten: s.bytesWritten,
		Duration:     duration,
		DurationMs:   duration.Milliseconds(),
		StartTime:    s.startTime,
	}
}

// Close stops an active recording
func (r *Recorder) Close() error {
	if r.IsRecording() {
		_, err := r.Stop()
		if errors.Is(err, ErrNotRecording) {
			return nil
		}
		return err
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	ID           string        `json:"id,omitempty"`
	Recording    bool          `json:"recording"`
	Filename     string        `json:"filename"`
	FrameCount   uint64        `json:"frame_count"`
	DroppedCount uint64        `json:"dropped_count"`
	BytesWritten uint64        `json:"bytes_written"`
	Duration     time.Duration `json:"-"`
	DurationMs   int64         `json:"duration_ms"`
	StartTime    time.Time     `json:"start_time"`
}
