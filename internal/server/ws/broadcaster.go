package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Message types on the wire.
const (
	TypeInitial = "initial"
	TypeUpdate  = "update"
	TypePong    = "pong"
)

// Message is the envelope of every frame sent to subscribers.
type Message struct {
	Type string               `json:"type"`
	Data *domain.SnapshotView `json:"data,omitempty"`
}

func encode(kind string, snap *domain.Snapshot) ([]byte, error) {
	msg := Message{Type: kind}
	if snap != nil {
		view := snap.View()
		msg.Data = &view
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("ws: encode %s: %w", kind, err)
	}
	return b, nil
}

// Recorder receives connection and fan-out metrics.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	ConnectionRejected(result string)
	SendFailed(reason string)
	ObserveBroadcast(seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionOpened() {}
func (nopRecorder) ConnectionClosed() {}
func (nopRecorder) ConnectionRejected(string) {}
func (nopRecorder) SendFailed(string) {}
func (nopRecorder) ObserveBroadcast(float64) {}

// Report summarizes one fan-out.
type Report struct {
	Delivered int
	Skipped   int
	Failed    int
}

// Broadcaster fans snapshots out to the registry.
type Broadcaster struct {
	registry  *Registry
	latest    func() *domain.Snapshot
	writeWait time.Duration
	logger    *slog.Logger
	metrics   Recorder
}

// NewBroadcaster creates a Broadcaster. latest supplies the most recently
// built snapshot for new subscribers.
func NewBroadcaster(registry *Registry, latest func() *domain.Snapshot, writeWait time.Duration, logger *slog.Logger, metrics Recorder) *Broadcaster {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Broadcaster{
		registry:  registry,
		latest:    latest,
		writeWait: writeWait,
		logger:    logger,
		metrics:   metrics,
	}
}

// Publish implements domain.SnapshotSink. Per-connection failures never fail
// the call.
func (b *Broadcaster) Publish(_ context.Context, snap *domain.Snapshot) error {
	_, err := b.Fanout(snap)
	return err
}

// Fanout queues an update for every registered connection. Connections that
// cannot take it are collected during the pass and removed afterwards; the
// pass always covers every connection.
func (b *Broadcaster) Fanout(snap *domain.Snapshot) (Report, error) {
	start := time.Now()
	msg, err := encode(TypeUpdate, snap)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	var failed []*Conn
	b.registry.ForEach(func(c *Conn) {
		queued, err := c.enqueue(msg, snap.Timestamp)
		switch {
		case err != nil:
			rep.Failed++
			failed = append(failed, c)
			b.metrics.SendFailed(failureReason(err))
			b.logger.Warn("ws: send failed, dropping client",
				slog.String("conn_id", c.ID()),
				slog.String("error", err.Error()),
			)
		case queued:
			rep.Delivered++
		default:
			rep.Skipped++
		}
	})

	for _, c := range failed {
		c.Close()
		b.registry.Remove(c)
	}

	b.metrics.ObserveBroadcast(time.Since(start).Seconds())
	b.logger.Debug("ws: snapshot broadcast",
		slog.Int("delivered", rep.Delivered),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed),
	)
	return rep, nil
}

// OnConnect writes the initial snapshot straight to the transport, then opens
// and registers the connection. Updates can only be queued after this
// returns, so the initial frame always comes first.
func (b *Broadcaster) OnConnect(c *Conn) error {
	snap := b.latest()
	msg, err := encode(TypeInitial, snap)
	if err != nil {
		return err
	}

	_ = c.transport.SetWriteDeadline(time.Now().Add(b.writeWait))
	if err := c.transport.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("ws: initial send: %w: %v", domain.ErrSendFailed, err)
	}

	var stamp time.Time
	if snap != nil {
		stamp = snap.Timestamp
	}
	if !c.open(stamp) {
		return fmt.Errorf("ws: open %s: %w", c.ID(), domain.ErrConnClosed)
	}
	b.registry.Add(c)
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrSendBufferFull):
		return "buffer_full"
	case errors.Is(err, domain.ErrConnClosed):
		return "closed"
	default:
		return "write"
	}
}
