package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/protobuf/proto"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/recorder"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/ui"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

// uiCallTimeout bounds how long a request waits for the UI loop.
const uiCallTimeout = 2 * time.Second

// UILoop is the execution context that owns the surface.
type UILoop interface {
	Call(ctx context.Context, fn func()) error
	Stats() ui.Stats
}

// Deps are the collaborators of a Server.
type Deps struct {
	Loop        UILoop
	Surface     *Surface
	Broadcaster *FrameBroadcaster
	Rotation    *RotationState
	Recorder    *recorder.Recorder
	Metrics     *metrics.Metrics
}

// Server serves the monitor endpoints.
type Server struct {
	cfg         Config
	loop        UILoop
	surface     *Surface
	broadcaster *FrameBroadcaster
	rotation    *RotationState
	recorder    *recorder.Recorder
	metrics     *metrics.Metrics
	status      *StatusBroadcaster
	startTime   time.Time
}

// NewServer returns a configured monitor server. Start must be called to
// begin status broadcasting.
func NewServer(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:         cfg,
		loop:        deps.Loop,
		surface:     deps.Surface,
		broadcaster: deps.Broadcaster,
		rotation:    deps.Rotation,
		recorder:    deps.Recorder,
		metrics:     deps.Metrics,
		startTime:   time.Now(),
	}
	s.status = NewStatusBroadcaster(s.collectStatusMap, cfg.StatusInterval)
	return s
}

// Start launches background broadcasters.
func (s *Server) Start() {
	s.status.Start()
}

// Stop disconnects all streaming clients so that http.Server.Shutdown can
// complete.
func (s *Server) Stop() {
	s.status.Stop()
	s.broadcaster.Close()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/snapshot.jpg", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/status/stream", s.handleStatusStream).Methods(http.MethodGet)
	api.HandleFunc("/rotation", s.handleGetRotation).Methods(http.MethodGet)
	api.HandleFunc("/rotation", s.handleSetRotation).Methods(http.MethodPost)
	api.HandleFunc("/recording/start", s.handleRecordingStart).Methods(http.MethodPost)
	api.HandleFunc("/recording/stop", s.handleRecordingStop).Methods(http.MethodPost)
	api.HandleFunc("/recording/status", s.handleRecordingStatus).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONWithStatus(w, map[string]any{"error": "method not allowed"}, http.StatusMethodNotAllowed)
	})
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "OK")
}

// snapshot reads the surface on the UI loop.
func (s *Server) snapshot(ctx context.Context) ([]byte, SurfaceStats, error) {
	ctx, cancel := context.WithTimeout(ctx, uiCallTimeout)
	defer cancel()

	var (
		jpeg  []byte
		stats SurfaceStats
	)
	err := s.loop.Call(ctx, func() { jpeg, stats = s.surface.Snapshot() })
	return jpeg, stats, err
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	first, _, err := s.snapshot(r.Context())
	if err != nil {
		logger.Debug("MJPEG", "No initial frame for %s: %v", id, err)
	}
	streamMJPEGFromChannel(r.Context(), w, frameCh, first, s.cfg.MJPEGKeepalive)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	jpeg, _, err := s.snapshot(r.Context())
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	if jpeg == nil {
		writeJSONWithStatus(w, map[string]any{"error": "no frame yet"}, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(jpeg)
}

func (s *Server) collectStatus(ctx context.Context) (statusSnapshot, error) {
	_, surface, err := s.snapshot(ctx)
	if err != nil {
		return statusSnapshot{}, err
	}
	snap := statusSnapshot{
		Surface:  surface,
		Pipeline: pipelineStats(s.metrics),
		UI:       s.loop.Stats(),
		Clients:  s.broadcaster.ClientCount(),
		Rotation: s.rotation.Rotation(),
		Uptime:   time.Since(s.startTime),
		Now:      time.Now(),
	}
	if s.recorder != nil {
		snap.Recording = s.recorder.Status()
	}
	return snap, nil
}

func (s *Server) collectStatusMap() (map[string]any, bool) {
	snap, err := s.collectStatus(context.Background())
	if err != nil {
		logger.Debug("StatusBroadcaster", "Status unavailable: %v", err)
		return nil, false
	}
	return snap.toMap(), true
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collectStatus(r.Context())
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	status := snap.toMap()

	if !wantsProtobuf(r) {
		writeJSON(w, status)
		return
	}

	msg, err := statusProto(status)
	if err == nil {
		var data []byte
		if data, err = proto.Marshal(msg); err == nil {
			w.Header().Set("Content-Type", "application/protobuf")
			_, _ = w.Write(data)
			return
		}
	}
	writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)

	var first *SerializedEvent
	if snap, err := s.collectStatus(r.Context()); err == nil {
		first = serializeStatus(snap.toMap())
	}
	streamStatusEventsFromChannel(r.Context(), w, eventCh, first, wantsProtobuf(r))
}

func rotationResponse(rot types.Rotation) RotationResponse {
	return RotationResponse{Degrees: rot.Degrees(), Label: rot.String()}
}

func (s *Server) handleGetRotation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, rotationResponse(s.rotation.Rotation()))
}

func (s *Server) handleSetRotation(w http.ResponseWriter, r *http.Request) {
	var req RotationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid request body"}, http.StatusBadRequest)
		return
	}
	if req.Degrees == nil {
		writeJSONWithStatus(w, map[string]any{"error": "missing degrees"}, http.StatusBadRequest)
		return
	}

	rot, err := types.ParseRotation(*req.Degrees)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	s.rotation.Set(rot)
	logger.Info("WebMonitor", "Display rotation set to %v", rot)
	writeJSON(w, rotationResponse(rot))
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recording disabled"}, http.StatusServiceUnavailable)
		return
	}

	status, err := s.recorder.Start()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, recorder.ErrAlreadyRecording) {
			code = http.StatusConflict
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, code)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "recording",
		"id":         status.ID,
		"file":       status.Filename,
		"started_at": unixSeconds(status.StartTime),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recording disabled"}, http.StatusServiceUnavailable)
		return
	}

	status, err := s.recorder.Stop()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, recorder.ErrNotRecording) {
			code = http.StatusConflict
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, code)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       status.Filename,
		"stats":      status,
		"stopped_at": unixSeconds(time.Now()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, recorder.RecordingStatus{})
		return
	}
	writeJSON(w, s.recorder.Status())
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
