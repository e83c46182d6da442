package webmonitor

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/recorder"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/ui"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// statusSnapshot gathers everything reported by /api/status.
type statusSnapshot struct {
	Surface   SurfaceStats
	Pipeline  PipelineStats
	UI        ui.Stats
	Clients   int
	Recording recorder.RecordingStatus
	Rotation  types.Rotation
	Uptime    time.Duration
	Now       time.Time
}

func pipelineStats(m *metrics.Metrics) PipelineStats {
	if m == nil {
		return PipelineStats{}
	}
	return PipelineStats{
		FramesReceived:   m.FramesReceived.Load(),
		FramesProcessed:  m.FramesProcessed.Load(),
		FramesDropped:    m.FramesDropped.Load(),
		SourceErrors:     m.SourceErrors.Load(),
		DisplayPosted:    m.DisplayPosted.Load(),
		DisplayDropped:   m.DisplayDropped.Load(),
		ProcessLatencyUs: m.ProcessLatencyUs.Load(),
		FrameLatencyMs:   m.FrameLatencyMs.Load(),
	}
}

// toMap builds the status document. Values are restricted to the types
// structpb accepts so the same map serves JSON and protobuf clients.
func (s statusSnapshot) toMap() map[string]any {
	var lastUpdate any
	if !s.Surface.LastUpdate.IsZero() {
		lastUpdate = unixSeconds(s.Surface.LastUpdate)
	}

	var startedAt any
	if s.Recording.Recording {
		startedAt = unixSeconds(s.Recording.StartTime)
	}

	return map[string]any{
		"surface": map[string]any{
			"has_frame":    s.Surface.HasFrame,
			"width":        s.Surface.Width,
			"height":       s.Surface.Height,
			"frame_number": s.Surface.FrameNumber,
			"rotation":     s.Surface.Rotation,
			"updates":      s.Surface.Updates,
			"current_fps":  s.Surface.CurrentFPS,
			"jpeg_bytes":   s.Surface.JPEGBytes,
			"last_update":  lastUpdate,
		},
		"pipeline": map[string]any{
			"frames_received":    s.Pipeline.FramesReceived,
			"frames_processed":   s.Pipeline.FramesProcessed,
			"frames_dropped":     s.Pipeline.FramesDropped,
			"source_errors":      s.Pipeline.SourceErrors,
			"display_posted":     s.Pipeline.DisplayPosted,
			"display_dropped":    s.Pipeline.DisplayDropped,
			"process_latency_us": s.Pipeline.ProcessLatencyUs,
			"frame_latency_ms":   s.Pipeline.FrameLatencyMs,
		},
		"ui_loop": map[string]any{
			"posted":   s.UI.Posted,
			"dropped":  s.UI.Dropped,
			"executed": s.UI.Executed,
			"panics":   s.UI.Panics,
			"pending":  s.UI.Pending,
		},
		"recording": map[string]any{
			"recording":     s.Recording.Recording,
			"filename":      s.Recording.Filename,
			"frame_count":   s.Recording.FrameCount,
			"bytes_written": s.Recording.BytesWritten,
			"duration_ms":   s.Recording.DurationMs,
			"started_at":    startedAt,
		},
		"rotation":       s.Rotation.Degrees(),
		"stream_clients": s.Clients,
		"uptime_s":       s.Uptime.Seconds(),
		"timestamp":      unixSeconds(s.Now),
	}
}

func statusProto(status map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(status)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
