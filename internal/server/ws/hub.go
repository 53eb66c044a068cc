package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	defaultIdleCheck = time.Second
)

// Config tunes the hub. Zero values fall back to the package defaults.
type Config struct {
	// IdleCheckInterval is how often an idle connection checks for a
	// published snapshot it has not seen yet.
	IdleCheckInterval time.Duration
	WriteWait         time.Duration
	PongWait          time.Duration
	SendBuffer        int
	// AllowedOrigins restricts the Origin header on upgrade. Empty or "*"
	// allows any origin.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.IdleCheckInterval <= 0 {
		c.IdleCheckInterval = defaultIdleCheck
	}
	if c.WriteWait <= 0 {
		c.WriteWait = writeWait
	}
	if c.PongWait <= 0 {
		c.PongWait = pongWait
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = sendBufferSize
	}
	return c
}

// SnapshotSource exposes the snapshots a hub serves.
type SnapshotSource interface {
	Latest() *domain.Snapshot
	Published() *domain.Snapshot
}

// Hub accepts subscriber connections and runs their read and write pumps.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	snapshots   SnapshotSource
	upgrader    websocket.Upgrader
	cfg         Config
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     Recorder

	mu      sync.Mutex
	closing bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock overrides the clock driving the idle and ping tickers.
func WithClock(c clockwork.Clock) Option {
	return func(h *Hub) { h.clock = c }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) {
		if r != nil {
			h.metrics = r
		}
	}
}

// NewHub creates a hub serving snapshots from src.
func NewHub(src SnapshotSource, logger *slog.Logger, cfg Config, opts ...Option) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		registry:  NewRegistry(),
		snapshots: src,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   nopRecorder{},
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	h.broadcaster = NewBroadcaster(h.registry, src.Latest, cfg.WriteWait, logger, h.metrics)
	return h
}

// Broadcaster returns the hub's broadcaster, which is the snapshot sink for
// subscribers.
func (h *Hub) Broadcaster() *Broadcaster { return h.broadcaster }

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Count returns the number of open connections.
func (h *Hub) Count() int { return h.registry.Len() }

// Run blocks until ctx is cancelled, then closes every connection and waits
// for all pumps to exit.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	h.closing = true
	close(h.quit)
	h.mu.Unlock()

	h.registry.ForEach(func(c *Conn) { c.Close() })
	h.wg.Wait()
	h.logger.Info("ws: hub stopped")
	return nil
}

// HandleWS upgrades an HTTP request to a WebSocket subscription.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.isClosing() {
		h.metrics.ConnectionRejected("shutdown")
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.ConnectionRejected("upgrade")
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(maxMessageSize)
	if _, err := h.Accept(conn); err != nil {
		h.logger.Warn("ws: accept failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
	}
}

// Accept runs the connect handshake on an established transport and starts
// its pumps. The transport is closed if the handshake fails.
func (h *Hub) Accept(t Transport) (*Conn, error) {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		h.metrics.ConnectionRejected("shutdown")
		_ = t.Close()
		return nil, domain.ErrConnClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()

	c := newConn(uuid.NewString(), t, h.clock.Now(), h.cfg.SendBuffer)
	if err := h.broadcaster.OnConnect(c); err != nil {
		c.markClosed()
		_ = t.Close()
		h.wg.Done()
		h.metrics.ConnectionRejected("failed")
		return nil, err
	}

	h.metrics.ConnectionOpened()
	h.logger.Info("ws: client connected",
		slog.String("conn_id", c.ID()),
		slog.Int("total_clients", h.registry.Len()),
	)

	go h.serve(c)
	return c, nil
}

func (h *Hub) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// serve owns the connection until it closes: it runs the write pump in its
// own goroutine and the read pump inline, then unregisters.
func (h *Hub) serve(c *Conn) {
	defer h.wg.Done()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(c)
	}()

	h.readPump(c)
	c.Close()
	<-writerDone

	h.registry.Remove(c)
	h.metrics.ConnectionClosed()
	h.logger.Info("ws: client disconnected",
		slog.String("conn_id", c.ID()),
		slog.Duration("duration", h.clock.Since(c.ConnectedAt())),
		slog.Int("total_clients", h.registry.Len()),
	)
}

// readPump waits for inbound frames. Any frame counts as liveness; a text
// "ping" is answered with a pong message. It returns when the transport
// fails or goes silent for longer than PongWait.
func (h *Hub) readPump(c *Conn) {
	pongHandler, ok := c.transport.(interface {
		SetPongHandler(func(string) error)
	})
	if ok {
		pongHandler.SetPongHandler(func(string) error {
			return c.transport.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		})
	}

	for {
		_ = c.transport.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		_, msg, err := c.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws: unexpected close",
					slog.String("conn_id", c.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		if strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
			pong, _ := encode(TypePong, nil)
			if _, err := c.enqueue(pong, time.Time{}); err != nil {
				return
			}
		}
	}
}

// writePump is the only writer on the transport once the connection is open.
// On its idle tick it forwards the published snapshot if this connection has
// not seen it, which covers updates missed between the initial send and
// registration.
func (h *Hub) writePump(c *Conn) {
	idle := h.clock.NewTicker(h.cfg.IdleCheckInterval)
	ping := h.clock.NewTicker(pingPeriodFor(h.cfg.PongWait))
	defer func() {
		idle.Stop()
		ping.Stop()
		_ = c.transport.Close()
	}()

	for {
		select {
		case <-c.Done():
			h.writeClose(c, websocket.CloseNormalClosure)
			return

		case <-h.quit:
			c.Close()
			h.writeClose(c, websocket.CloseGoingAway)
			return

		case msg := <-c.send:
			if err := h.write(c, websocket.TextMessage, msg); err != nil {
				h.metrics.SendFailed("write")
				h.logger.Warn("ws: write failed",
					slog.String("conn_id", c.ID()),
					slog.String("error", err.Error()),
				)
				c.Close()
				return
			}

		case <-idle.Chan():
			h.catchUp(c)

		case <-ping.Chan():
			if err := h.write(c, websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (h *Hub) catchUp(c *Conn) {
	snap := h.snapshots.Published()
	if snap == nil || !snap.Timestamp.After(c.LastSeen()) {
		return
	}
	msg, err := encode(TypeUpdate, snap)
	if err != nil {
		return
	}
	if _, err := c.enqueue(msg, snap.Timestamp); err != nil && !errors.Is(err, domain.ErrConnClosed) {
		h.logger.Debug("ws: catch-up skipped",
			slog.String("conn_id", c.ID()),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Hub) write(c *Conn, kind int, data []byte) error {
	_ = c.transport.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	return c.transport.WriteMessage(kind, data)
}

func (h *Hub) writeClose(c *Conn, code int) {
	_ = h.write(c, websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
}

func pingPeriodFor(wait time.Duration) time.Duration {
	if wait == pongWait {
		return pingPeriod
	}
	return (wait * 9) / 10
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
