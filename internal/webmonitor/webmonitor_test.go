package webmonitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/processor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/recorder"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/ui"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/pkg/types"
)

type testEnv struct {
	srv      *Server
	handler  http.Handler
	loop     *ui.Loop
	surface  *Surface
	bc       *FrameBroadcaster
	rotation *RotationState
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	m := metrics.New()
	loop := ui.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	bc := NewFrameBroadcaster(m)
	rec := recorder.NewRecorder(t.TempDir(), m)
	surface := NewSurface(80, bc, m, rec)
	rotation := NewRotationState(types.Rotation90)

	cfg := DefaultConfig()
	cfg.StatusInterval = 20 * time.Millisecond
	srv := NewServer(cfg, Deps{
		Loop:        loop,
		Surface:     surface,
		Broadcaster: bc,
		Rotation:    rotation,
		Recorder:    rec,
		Metrics:     m,
	})
	srv.Start()

	t.Cleanup(func() {
		srv.Stop()
		rec.Close()
		cancel()
		<-loop.Done()
	})
	return &testEnv{srv: srv, handler: srv.Handler(), loop: loop, surface: surface, bc: bc, rotation: rotation, metrics: m}
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func (e *testEnv) show(t *testing.T, num uint64) {
	t.Helper()
	img := solidImage(64, 48, color.RGBA{R: 200, A: 255})
	info := processor.FrameInfo{FrameNum: num, Timestamp: time.Now(), Rotation: types.Rotation90}
	if err := e.loop.Call(context.Background(), func() { e.surface.SetImage(img, info) }); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
	if rec := e.do(http.MethodPost, "/health", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health = %d", rec.Code)
	}
}

func TestSnapshot(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(http.MethodGet, "/snapshot.jpg", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("snapshot before first frame = %d", rec.Code)
	}

	e.show(t, 3)
	rec := e.do(http.MethodGet, "/snapshot.jpg", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("snapshot = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	img, err := jpeg.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("snapshot bounds = %v", b)
	}
	if e.metrics.SurfaceUpdates.Load() != 1 {
		t.Errorf("SurfaceUpdates = %d", e.metrics.SurfaceUpdates.Load())
	}
}

func TestRotationAPI(t *testing.T) {
	e := newTestEnv(t)

	var got RotationResponse
	rec := e.do(http.MethodGet, "/api/rotation", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.Degrees != 90 {
		t.Fatalf("GET rotation = %s (%v)", rec.Body.String(), err)
	}

	tests := []struct {
		body string
		code int
	}{
		{`{"degrees": 270}`, http.StatusOK},
		{`{"degrees": 45}`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := e.do(http.MethodPost, "/api/rotation", tt.body, nil); rec.Code != tt.code {
			t.Errorf("POST %s = %d, want %d", tt.body, rec.Code, tt.code)
		}
	}
	if e.rotation.Rotation() != types.Rotation270 {
		t.Errorf("rotation = %v, want 270°", e.rotation.Rotation())
	}
}

func TestStatusJSONAndProtobuf(t *testing.T) {
	e := newTestEnv(t)
	e.show(t, 11)

	rec := e.do(http.MethodGet, "/api/status", "", nil)
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("status json: %v (%s)", err, rec.Body.String())
	}
	surface := status["surface"].(map[string]any)
	if surface["frame_number"].(float64) != 11 || surface["has_frame"] != true {
		t.Errorf("surface = %v", surface)
	}
	if status["rotation"].(float64) != 90 {
		t.Errorf("rotation = %v", status["rotation"])
	}

	rec = e.do(http.MethodGet, "/api/status", "", map[string]string{"Accept": "application/protobuf"})
	if ct := rec.Header().Get("Content-Type"); ct != "application/protobuf" {
		t.Fatalf("content type = %q", ct)
	}
	var msg structpb.Struct
	if err := proto.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("unmarshal protobuf: %v", err)
	}
	if got := msg.Fields["surface"].GetStructValue().Fields["frame_number"].GetNumberValue(); got != 11 {
		t.Errorf("protobuf frame_number = %v", got)
	}
}

func TestRecordingAPI(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(http.MethodPost, "/api/recording/stop", "", nil); rec.Code != http.StatusConflict {
		t.Fatalf("stop while idle = %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, "/api/recording/start", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("start = %d %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(http.MethodPost, "/api/recording/start", "", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second start = %d", rec.Code)
	}

	e.show(t, 1)
	e.show(t, 2)

	rec := e.do(http.MethodPost, "/api/recording/stop", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop = %d", rec.Code)
	}
	var body struct {
		Stats recorder.RecordingStatus `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Stats.FrameCount != 2 {
		t.Errorf("recorded %d frames, want 2", body.Stats.FrameCount)
	}
}

func TestMJPEGStream(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("content type = %q", ct)
	}
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "--frame" {
		t.Fatalf("first line = %q (%v)", line, err)
	}
}

func TestWebSocketPush(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for e.bc.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	e.show(t, 5)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage || !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Fatalf("message type %d, %d bytes", kind, len(data))
	}
}

func TestFrameBroadcaster(t *testing.T) {
	m := metrics.New()
	bc := NewFrameBroadcaster(m)

	id1, ch1 := bc.Subscribe()
	id2, ch2 := bc.Subscribe()
	if id1 == id2 {
		t.Fatal("duplicate subscriber ids")
	}
	if m.StreamClients.Load() != 2 || m.TotalClients.Load() != 2 {
		t.Fatalf("clients = %d/%d", m.StreamClients.Load(), m.TotalClients.Load())
	}

	for i := 0; i < 3; i++ {
		bc.Publish([]byte{byte(i)})
	}
	if len(ch1) != 2 || bc.Dropped() != 2 {
		t.Errorf("buffered %d, dropped %d", len(ch1), bc.Dropped())
	}

	bc.Unsubscribe(id1)
	if _, ok := <-drain(ch1); ok {
		t.Error("unsubscribed channel still open")
	}

	bc.Close()
	if _, ok := <-drain(ch2); ok {
		t.Error("channel open after Close")
	}
	if m.StreamClients.Load() != 0 {
		t.Errorf("StreamClients = %d after Close", m.StreamClients.Load())
	}
	if _, ch := bc.Subscribe(); func() bool { _, ok := <-ch; return ok }() {
		t.Error("subscribe after Close returned an open channel")
	}
}

// drain empties buffered frames so the next receive observes closure.
func drain(ch <-chan []byte) <-chan []byte {
	for len(ch) > 0 {
		<-ch
	}
	return ch
}

func TestSurfaceFPS(t *testing.T) {
	s := NewSurface(80, nil, nil)
	img := solidImage(8, 8, color.RGBA{A: 255})
	base := time.Now()
	for i := 0; i < 11; i++ {
		s.SetImage(img, processor.FrameInfo{FrameNum: uint64(i)})
		s.times[i%fpsWindow] = base.Add(time.Duration(i) * 100 * time.Millisecond)
	}
	_, st := s.Snapshot()
	if st.CurrentFPS < 9.9 || st.CurrentFPS > 10.1 {
		t.Errorf("CurrentFPS = %v, want 10", st.CurrentFPS)
	}
	if st.Updates != 11 || st.Width != 8 {
		t.Errorf("stats = %+v", st)
	}
}
