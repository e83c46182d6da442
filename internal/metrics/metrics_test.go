package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.FramesReceived.Add(3)
	m.FramesDropped.Add(1)
	m.StreamClients.Add(2)
	m.UpdateProcessLatency(1500 * time.Microsecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"diffmonitor_frames_received_total 3",
		"diffmonitor_frames_dropped_total 1",
		"diffmonitor_stream_clients 2",
		"diffmonitor_process_latency_us 1500",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestUpdateFrameLatencyIgnoresZeroTime(t *testing.T) {
	m := New()
	m.FrameLatencyMs.Store(42)
	m.UpdateFrameLatency(time.Time{})
	if got := m.FrameLatencyMs.Load(); got != 42 {
		t.Fatalf("FrameLatencyMs = %d, want 42", got)
	}
}
