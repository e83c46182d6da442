package webmonitor

import "time"

// SurfaceStats describes the image currently shown on the surface.
type SurfaceStats struct {
	HasFrame    bool      `json:"has_frame"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FrameNumber uint64    `json:"frame_number"`
	Rotation    int       `json:"rotation"`
	Updates     uint64    `json:"updates"`
	CurrentFPS  float64   `json:"current_fps"`
	JPEGBytes   int       `json:"jpeg_bytes"`
	LastUpdate  time.Time `json:"-"`
}

// PipelineStats mirrors the processing counters.
type PipelineStats struct {
	FramesReceived   uint64 `json:"frames_received"`
	FramesProcessed  uint64 `json:"frames_processed"`
	FramesDropped    uint64 `json:"frames_dropped"`
	SourceErrors     uint64 `json:"source_errors"`
	DisplayPosted    uint64 `json:"display_posted"`
	DisplayDropped   uint64 `json:"display_dropped"`
	ProcessLatencyUs uint64 `json:"process_latency_us"`
	FrameLatencyMs   uint64 `json:"frame_latency_ms"`
}

// RotationRequest is the body of POST /api/rotation.
type RotationRequest struct {
	Degrees *int `json:"degrees"`
}

// RotationResponse is returned by /api/rotation.
type RotationResponse struct {
	Degrees int    `json:"degrees"`
	Label   string `json:"label"`
}
