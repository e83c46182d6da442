package ui

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startLoop(t *testing.T, size int) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(size)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestPostRunsInOrder(t *testing.T) {
	l, _ := startLoop(t, 8)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatalf("Post %d rejected", i)
		}
	}
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d items, want 5", len(got))
	}
}

func TestPostDropsWhenFull(t *testing.T) {
	l := New(2)
	if !l.Post(func() {}) || !l.Post(func() {}) {
		t.Fatal("first two posts should fit")
	}
	if l.Post(func() {}) {
		t.Fatal("third post should be dropped")
	}
	s := l.Stats()
	if s.Posted != 2 || s.Dropped != 1 || s.Pending != 2 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestPanicDoesNotStopLoop(t *testing.T) {
	l, _ := startLoop(t, 4)

	l.Post(func() { panic("boom") })
	ran := false
	if err := l.Call(context.Background(), func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("item after panic did not run")
	}
	if s := l.Stats(); s.Panics != 1 {
		t.Fatalf("Panics = %d, want 1", s.Panics)
	}
}

func TestCallReportsPanic(t *testing.T) {
	l, _ := startLoop(t, 4)
	if err := l.Call(context.Background(), func() { panic("bad") }); err == nil {
		t.Fatal("expected error from panicking call")
	}
}

func TestCallAfterStop(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	if err := l.Call(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Call after stop = %v, want ErrStopped", err)
	}
	if l.Post(func() {}) {
		t.Fatal("Post after stop accepted")
	}
}

func TestCallHonorsContext(t *testing.T) {
	l := New(1)
	l.Post(func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Call(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Call = %v, want deadline exceeded", err)
	}
}

func TestSecondRunRejected(t *testing.T) {
	l, _ := startLoop(t, 1)
	// Wait for the first Run to mark itself running.
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run = %v", err)
	}
}
