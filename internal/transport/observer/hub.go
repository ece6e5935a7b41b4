package observer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/tilestream/internal/core/events/bus"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
)

var ErrHubClosed = errors.New("observer hub closed")

type Config struct {
	// SendBuffer is the per-client queue. Messages to a full queue are dropped.
	SendBuffer int
	// StatsInterval is how often STATS is broadcast. Zero disables it.
	StatsInterval time.Duration
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:    1024,
		StatsInterval: time.Second,
		WriteTimeout:  5 * time.Second,
		ReadTimeout:   60 * time.Second,
	}
}

// StatsFunc returns the payload of periodic STATS messages.
type StatsFunc func() any

type client struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
}

// Hub fans engine events out to websocket observers and collects viewer
// positions sent back by them.
type Hub struct {
	cfg    Config
	logger log.Log
	bus    bus.EventBus
	sub    bus.Subscription
	stats  StatsFunc

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	viewer  atomic.Pointer[physics.Vec3]
	sent    atomic.Uint64
	dropped atomic.Uint64

	running  atomic.Bool
	closed   atomic.Bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

func New(cfg Config, b bus.EventBus, stats StatsFunc, logger log.Log) (*Hub, error) {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}

	h := &Hub{
		cfg:    cfg,
		logger: logger.With(log.String("component", "observer")),
		bus:    b,
		stats:  stats,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*client),
		stopChan: make(chan struct{}),
	}

	if b != nil {
		sub, err := b.Subscribe(bus.Wildcard, h.onEvent)
		if err != nil {
			return nil, err
		}
		h.sub = sub
	}
	return h, nil
}

// Start runs the stats broadcaster until Close.
func (h *Hub) Start() error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if !h.running.CompareAndSwap(false, true) {
		return nil
	}
	if h.cfg.StatsInterval > 0 && h.stats != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.statsLoop()
		}()
	}
	return nil
}

func (h *Hub) statsLoop() {
	ticker := time.NewTicker(h.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.broadcast(Message{Type: TypeStats, Time: time.Now(), Data: h.stats()})
		case <-h.stopChan:
			return
		}
	}
}

func (h *Hub) onEvent(ev bus.Event) error {
	h.broadcast(Message{
		Type:   TypeEvent,
		Event:  ev.Type(),
		Source: ev.Source(),
		Time:   ev.Timestamp(),
		Data:   ev.Data(),
	})
	return nil
}

func (h *Hub) broadcast(m Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		h.logger.Warn("Failed to encode observer message", log.String("type", m.Type), log.Error(err))
		return
	}
	for _, c := range h.clients {
		h.enqueue(c, b)
	}
}

func (h *Hub) enqueue(c *client, b []byte) {
	select {
	case c.out <- b:
	default:
		h.dropped.Add(1)
	}
}

// Viewer returns the last position sent by any observer.
func (h *Hub) Viewer() (physics.Vec3, bool) {
	p := h.viewer.Load()
	if p == nil {
		return physics.Vec3{}, false
	}
	return *p, true
}

// SetViewer overrides the viewer position as if an observer had sent it.
func (h *Hub) SetViewer(p physics.Vec3) {
	h.viewer.Store(&p)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Counters returns the number of messages queued to clients and dropped
// because a client queue was full.
func (h *Hub) Counters() (sent, dropped uint64) {
	return h.sent.Load(), h.dropped.Load()
}

// Handler upgrades the request and serves one observer until it
// disconnects or the hub closes.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if h.closed.Load() {
			http.Error(rw, ErrHubClosed.Error(), http.StatusServiceUnavailable)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			h.logger.Debug("Upgrade failed", log.Error(err))
			return
		}
		defer func() { _ = conn.Close() }()

		c := &client{id: uuid.NewString(), conn: conn, out: make(chan []byte, h.cfg.SendBuffer)}
		if !h.register(c) {
			return
		}
		defer h.unregister(c)

		clientLogger := h.logger.With(log.String("session", c.id))
		clientLogger.Info("Observer connected", log.String("remote_addr", r.RemoteAddr))

		if welcome, err := json.Marshal(Message{Type: TypeWelcome, Session: c.id, Time: time.Now()}); err == nil {
			h.enqueue(c, welcome)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() { writeErr <- h.writeLoop(ctx, c) }()

		h.readLoop(c, clientLogger)

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		clientLogger.Info("Observer disconnected")
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

func (h *Hub) writeLoop(ctx context.Context, c *client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
			h.sent.Add(1)
		}
	}
}

func (h *Hub) readLoop(c *client, logger log.Log) {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err = json.Unmarshal(raw, &msg); err != nil {
			logger.Debug("Ignoring malformed message", log.Error(err))
			continue
		}
		switch msg.Type {
		case TypeViewer:
			h.SetViewer(msg.Position())
		default:
			logger.Debug("Ignoring message", log.String("type", msg.Type))
		}
	}
}

// Close unsubscribes from the bus and disconnects every observer.
func (h *Hub) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(h.stopChan)
	if h.bus != nil && h.sub != nil {
		_ = h.bus.Unsubscribe(h.sub)
	}

	h.mu.Lock()
	for _, c := range h.clients {
		_ = c.conn.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info("Observer hub closed")
	return nil
}
