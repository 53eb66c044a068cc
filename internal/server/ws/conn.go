package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// State is the lifecycle state of a subscriber connection. Transitions only
// move forward: Connecting -> Open -> Closing -> Closed, with Connecting ->
// Closing allowed when the handshake fails.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the subset of *websocket.Conn a connection needs.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one subscriber. The registry owns it; the broadcaster only enqueues
// onto its send buffer.
type Conn struct {
	id          string
	transport   Transport
	connectedAt time.Time

	state atomic.Int32
	send  chan []byte
	done  chan struct{}
	once  sync.Once

	mu       sync.Mutex
	lastSeen time.Time
}

func newConn(id string, t Transport, connectedAt time.Time, buffer int) *Conn {
	return &Conn{
		id:          id,
		transport:   t,
		connectedAt: connectedAt,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

func (c *Conn) ID() string             { return c.id }
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }
func (c *Conn) State() State           { return State(c.state.Load()) }

// LastSeen is the timestamp of the newest snapshot queued for or written to
// this connection.
func (c *Conn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Done is closed once the connection starts closing.
func (c *Conn) Done() <-chan struct{} { return c.done }

// open moves a connection whose initial snapshot was written to Open.
func (c *Conn) open(stamp time.Time) bool {
	c.mu.Lock()
	c.lastSeen = stamp
	c.mu.Unlock()
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Close starts closing the connection. It reports whether this call performed
// the transition.
func (c *Conn) Close() bool {
	for {
		cur := c.state.Load()
		if cur != int32(StateConnecting) && cur != int32(StateOpen) {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(StateClosing)) {
			c.once.Do(func() { close(c.done) })
			return true
		}
	}
}

// markClosed completes the lifecycle after registry removal.
func (c *Conn) markClosed() {
	c.Close()
	c.state.Store(int32(StateClosed))
}

// enqueue queues a frame without blocking. Snapshot frames (non-zero stamp)
// not newer than the last one queued are dropped so the client never sees
// time go backwards; the returned bool is false in that case.
func (c *Conn) enqueue(data []byte, stamp time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateOpen {
		return false, domain.ErrConnClosed
	}
	if !stamp.IsZero() && !stamp.After(c.lastSeen) {
		return false, nil
	}
	select {
	case c.send <- data:
	default:
		return false, domain.ErrSendBufferFull
	}
	if !stamp.IsZero() {
		c.lastSeen = stamp
	}
	return true, nil
}
