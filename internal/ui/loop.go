// Package ui provides the single-goroutine execution context that owns the
// display surface. All display mutations are funneled through a Loop.
package ui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
)

// DefaultQueueSize is the number of pending work items a Loop buffers.
const DefaultQueueSize = 4

var (
	// ErrStopped is returned by Call once the loop has exited.
	ErrStopped = errors.New("ui loop stopped")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("ui loop already running")
)

// Stats is a snapshot of the loop counters.
type Stats struct {
	Posted   uint64
	Dropped  uint64
	Executed uint64
	Panics   uint64
	Pending  int
}

// Loop runs posted functions one at a time, in order, on the goroutine that
// called Run.
type Loop struct {
	queue   chan func()
	stopped chan struct{}
	stop    sync.Once
	running atomic.Bool

	posted   atomic.Uint64
	dropped  atomic.Uint64
	executed atomic.Uint64
	panics   atomic.Uint64

	log logger.Module
}

// New creates a loop with room for size pending items.
func New(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{
		queue:   make(chan func(), size),
		stopped: make(chan struct{}),
		log:     logger.ForModule("UI"),
	}
}

// Post queues fn without blocking. It returns false if the queue is full or
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		l.dropped.Add(1)
		return false
	default:
	}

	select {
	case l.queue <- fn:
		l.posted.Add(1)
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

// Call runs fn on the loop and waits for it to return. Unlike Post it
// blocks while the queue is full.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan error, 1)
	item := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("ui call panicked: %v", r)
				panic(r)
			}
		}()
		fn()
		done <- nil
	}

	select {
	case l.queue <- item:
		l.posted.Add(1)
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-l.stopped:
		select {
		case err := <-done:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued items until ctx is cancelled. Items still queued at
// that point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.stop.Do(func() { close(l.stopped) })

	l.log.Debugf("UI loop started (queue=%d)", cap(l.queue))
	for {
		select {
		case <-ctx.Done():
			l.log.Debugf("UI loop stopped: %d pending items discarded", len(l.queue))
			return ctx.Err()
		case fn := <-l.queue:
			l.execute(fn)
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.log.Errorf("Recovered panic in UI item: %v", r)
		}
	}()
	fn()
	l.executed.Add(1)
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Posted:   l.posted.Load(),
		Dropped:  l.dropped.Load(),
		Executed: l.executed.Load(),
		Panics:   l.panics.Load(),
		Pending:  len(l.queue),
	}
}
