package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/diff-monitor/internal/metrics"
)

// FrameBroadcaster manages fanout of JPEG frames to multiple clients.
type FrameBroadcaster struct {
	mu      sync.Mutex
	clients map[uuid.UUID]chan []byte
	closed  bool
	dropped uint64
	metrics *metrics.Metrics
}

// NewFrameBroadcaster creates a broadcaster. m may be nil.
func NewFrameBroadcaster(m *metrics.Metrics) *FrameBroadcaster {
	return &FrameBroadcaster{
		clients: make(map[uuid.UUID]chan []byte),
		metrics: m,
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
// The channel is closed by Unsubscribe or Close.
func (fb *FrameBroadcaster) Subscribe() (uuid.UUID, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := uuid.New()
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	if fb.closed {
		close(ch)
		return id, ch
	}
	fb.clients[id] = ch

	if fb.metrics != nil {
		fb.metrics.StreamClients.Add(1)
		fb.metrics.TotalClients.Add(1)
	}
	logger.Debug("FrameBroadcaster", "Client %s subscribed (total clients: %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id uuid.UUID) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		if fb.metrics != nil {
			fb.metrics.StreamClients.Add(-1)
		}
		logger.Debug("FrameBroadcaster", "Client %s unsubscribed (remaining clients: %d)", id, len(fb.clients))
	}
}

// Publish sends data to every client. Clients whose buffer is full skip
// this frame.
func (fb *FrameBroadcaster) Publish(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, ch := range fb.clients {
		select {
		case ch <- data:
		default:
			fb.dropped++
		}
	}
}

// ClientCount returns the number of subscribed clients.
func (fb *FrameBroadcaster) ClientCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients)
}

// Dropped returns the number of per-client frame drops.
func (fb *FrameBroadcaster) Dropped() uint64 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.dropped
}

// Close disconnects all clients; later subscribers get a closed channel.
func (fb *FrameBroadcaster) Close() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.closed {
		return
	}
	fb.closed = true
	for id, ch := range fb.clients {
		close(ch)
		delete(fb.clients, id)
	}
	if fb.metrics != nil {
		fb.metrics.StreamClients.Store(0)
	}
}

// SerializedEvent holds pre-serialized data in both formats.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// StatusSource produces one status document. ok is false when no status
// could be collected.
type StatusSource func() (status map[string]any, ok bool)

// StatusBroadcaster periodically publishes status events to SSE clients.
type StatusBroadcaster struct {
	mu       sync.Mutex
	clients  map[uuid.UUID]chan *SerializedEvent
	interval time.Duration
	source   StatusSource
	stop     chan struct{}
	stopped  bool
}

// NewStatusBroadcaster creates a broadcaster polling source every interval.
func NewStatusBroadcaster(source StatusSource, interval time.Duration) *StatusBroadcaster {
	return &StatusBroadcaster{
		clients:  make(map[uuid.UUID]chan *SerializedEvent),
		interval: interval,
		source:   source,
		stop:     make(chan struct{}),
	}
}

// Subscribe adds a new client and returns a channel for receiving status events.
func (sb *StatusBroadcaster) Subscribe() (uuid.UUID, <-chan *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	id := uuid.New()
	ch := make(chan *SerializedEvent, 2) // Buffer 2 events to avoid blocking
	if sb.stopped {
		close(ch)
		return id, ch
	}
	sb.clients[id] = ch

	logger.Debug("StatusBroadcaster", "Client %s subscribed (total clients: %d)", id, len(sb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (sb *StatusBroadcaster) Unsubscribe(id uuid.UUID) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if ch, ok := sb.clients[id]; ok {
		close(ch)
		delete(sb.clients, id)
	}
}

// Start begins the periodic broadcast loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster and disconnects all clients.
func (sb *StatusBroadcaster) Stop() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.stopped {
		return
	}
	close(sb.stop)
	sb.stopped = true
	for id, ch := range sb.clients {
		close(ch)
		delete(sb.clients, id)
	}
}

func (sb *StatusBroadcaster) run() {
	logger.Info("StatusBroadcaster", "Starting status event broadcaster (interval=%v)...", sb.interval)
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			sb.mu.Lock()
			clientCount := len(sb.clients)
			sb.mu.Unlock()

			if clientCount == 0 {
				continue
			}

			status, ok := sb.source()
			if !ok {
				continue
			}
			if event := serializeStatus(status); event != nil {
				sb.broadcast(event)
			}
		}
	}
}

func serializeStatus(status map[string]any) *SerializedEvent {
	jsonData, err := json.Marshal(status)
	if err != nil {
		logger.Error("StatusBroadcaster", "JSON marshal error: %v", err)
		return nil
	}

	pbStatus, err := statusProto(status)
	if err != nil {
		logger.Error("StatusBroadcaster", "Protobuf conversion error: %v", err)
		return nil
	}
	pbData, err := proto.Marshal(pbStatus)
	if err != nil {
		logger.Error("StatusBroadcaster", "Protobuf marshal error: %v", err)
		return nil
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}
}

func (sb *StatusBroadcaster) broadcast(event *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, ch := range sb.clients {
		select {
		case ch <- event:
		default:
		}
	}
}
