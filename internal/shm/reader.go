//go:build linux && cgo

package shm

/*
#cgo LDFLAGS: -lrt -lpthread

#include <stdlib.h>
#include <stdint.h>
#include <time.h>
#include <sys/mman.h>
#include <fcntl.h>
#include <unistd.h>
#include <string.h>
#include <semaphore.h>
#include <errno.h>

#define RING_BUFFER_SIZE 30
#define MAX_FRAME_SIZE (1920 * 1080 * 3 / 2)

// Layout shared with the capture daemon (shared_memory.h)
typedef struct {
    uint64_t frame_number;
    struct timespec timestamp;
    int camera_id;
    int width;
    int height;
    int format;
    size_t data_size;
    float brightness_avg;
    uint32_t brightness_lux;
    uint8_t brightness_zone;
    uint8_t correction_applied;
    uint8_t _reserved[2];
    uint8_t data[MAX_FRAME_SIZE];
} Frame;

typedef struct {
    volatile uint32_t write_index;
    volatile uint32_t frame_interval_ms;
    uint8_t new_frame_sem[32];
    Frame frames[RING_BUFFER_SIZE];
} SharedFrameBuffer;

typedef struct {
    uint64_t frame_number;
    int64_t ts_sec;
    int64_t ts_nsec;
    int width;
    int height;
    int format;
    size_t data_size;
} FrameHeader;

static SharedFrameBuffer* ring_open(const char* name) {
    int fd = shm_open(name, O_RDWR, 0666);
    if (fd == -1) {
        return NULL;
    }
    SharedFrameBuffer* shm = (SharedFrameBuffer*)mmap(
        NULL, sizeof(SharedFrameBuffer), PROT_READ | PROT_WRITE, MAP_SHARED, fd, 0);
    close(fd);
    if (shm == MAP_FAILED) {
        return NULL;
    }
    return shm;
}

static void ring_close(SharedFrameBuffer* shm) {
    if (shm != NULL) {
        munmap((void*)shm, sizeof(SharedFrameBuffer));
    }
}

// Returns 0 on a new frame, otherwise a positive errno (ETIMEDOUT on timeout).
static int ring_wait(SharedFrameBuffer* shm, int timeout_ms) {
    struct timespec ts;
    if (clock_gettime(CLOCK_REALTIME, &ts) != 0) {
        return errno;
    }
    ts.tv_sec += timeout_ms / 1000;
    ts.tv_nsec += (timeout_ms % 1000) * 1000000;
    if (ts.tv_nsec >= 1000000000) {
        ts.tv_sec += 1;
        ts.tv_nsec -= 1000000000;
    }
    if (sem_timedwait((sem_t*)&shm->new_frame_sem, &ts) != 0) {
        return errno;
    }
    return 0;
}

// Copies the newest slot header, and its data when dst is large enough.
// Returns -1 when nothing has been written yet.
static int ring_read_latest(SharedFrameBuffer* shm, FrameHeader* hdr, uint8_t* dst, size_t cap) {
    uint32_t write_idx = __atomic_load_n(&shm->write_index, __ATOMIC_ACQUIRE);
    if (write_idx == 0) {
        return -1;
    }
    Frame* f = &shm->frames[(write_idx - 1) % RING_BUFFER_SIZE];
    hdr->frame_number = f->frame_number;
    hdr->ts_sec = f->timestamp.tv_sec;
    hdr->ts_nsec = f->timestamp.tv_nsec;
    hdr->width = f->width;
    hdr->height = f->height;
    hdr->format = f->format;
    hdr->data_size = f->data_size;
    if (f->data_size <= cap && f->data_size <= MAX_FRAME_SIZE) {
        memcpy(dst, f->data, f->data_size);
    }
    return 0;
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/camera"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// waitSlice bounds each semaphore wait so Next notices cancellation.
const waitSlice = 100 * time.Millisecond

// Reader is a camera.Source backed by the capture daemon's NV12 ring.
type Reader struct {
	mu      sync.Mutex
	shm     *C.SharedFrameBuffer
	shmName string

	free   chan []byte
	filter filter
	log    logger.Module
}

var _ camera.Source = (*Reader)(nil)

// NewReader opens the ring, retrying for up to openTimeout while the
// capture daemon starts.
func NewReader(ctx context.Context, shmName string, openTimeout time.Duration) (*Reader, error) {
	if shmName == "" {
		shmName = DefaultName
	}
	log := logger.ForModule("SHM")

	cName := C.CString(shmName)
	defer C.free(unsafe.Pointer(cName))

	deadline := time.Now().Add(openTimeout)
	var shm *C.SharedFrameBuffer
	for attempt := 1; ; attempt++ {
		if shm = C.ring_open(cName); shm != nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("failed to open shared memory %s (timeout after %v)", shmName, openTimeout)
		}
		if attempt%5 == 1 {
			log.Infof("Waiting for shared memory %s to appear... (attempt %d)", shmName, attempt)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	log.Infof("Opened shared memory %s", shmName)

	r := &Reader{
		shm:     shm,
		shmName: shmName,
		free:    make(chan []byte, 1),
		log:     log,
	}
	r.free <- make([]byte, MaxFrameSize)
	return r, nil
}

// Next implements camera.Source. It blocks until the daemon publishes an
// NV12 frame that has not been delivered before.
func (r *Reader) Next(ctx context.Context) (*types.YUVFrame, error) {
	var buf []byte
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case buf = <-r.free:
	}

	for {
		if err := ctx.Err(); err != nil {
			r.free <- buf
			return nil, err
		}

		h, err := r.poll(buf)
		switch {
		case err == nil:
			return newFrame(buf, h, func() { r.free <- buf }), nil
		case errors.Is(err, errNoFrame), errors.Is(err, errDuplicate):
			continue
		case errors.Is(err, ErrNotOpen):
			r.free <- buf
			return nil, camera.ErrClosed
		default:
			r.log.Debugf("Skipping ring slot: %v", err)
		}
	}
}

var errNoFrame = errors.New("no new frame")

func (r *Reader) poll(buf []byte) (header, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shm == nil {
		return header{}, ErrNotOpen
	}

	if rc := C.ring_wait(r.shm, C.int(waitSlice.Milliseconds())); rc != 0 {
		if errno := syscall.Errno(rc); errno != syscall.ETIMEDOUT && errno != syscall.EINTR {
			return header{}, fmt.Errorf("semaphore wait failed: %w", errno)
		}
		return header{}, errNoFrame
	}

	var ch C.FrameHeader
	if C.ring_read_latest(r.shm, &ch, (*C.uint8_t)(unsafe.Pointer(&buf[0])), C.size_t(len(buf))) != 0 {
		return header{}, errNoFrame
	}

	h := header{
		FrameNumber: uint64(ch.frame_number),
		Timestamp:   time.Unix(int64(ch.ts_sec), int64(ch.ts_nsec)),
		Width:       int(ch.width),
		Height:      int(ch.height),
		Format:      int(ch.format),
		DataSize:    int(ch.data_size),
	}
	if h.DataSize > len(buf) {
		return header{}, fmt.Errorf("frame %d: %d bytes exceeds buffer", h.FrameNumber, h.DataSize)
	}
	if err := r.filter.accept(h); err != nil {
		return header{}, err
	}
	return h, nil
}

// Close implements camera.Source.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shm != nil {
		C.ring_close(r.shm)
		r.shm = nil
	}
	return nil
}
