package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Default keys for the snapshot mirror.
const (
	DefaultSnapshotKey     = "livefeed:snapshot"
	DefaultSnapshotChannel = "livefeed:updates"
)

// SnapshotMirror is a snapshot sink that stores the latest published
// snapshot under a key and announces it on a Pub/Sub channel, so other
// services can follow the feed without reading the sources.
type SnapshotMirror struct {
	rdb     *redis.Client
	key     string
	channel string
	ttl     time.Duration
}

// NewSnapshotMirror creates a SnapshotMirror. A zero ttl keeps the key
// forever.
func NewSnapshotMirror(c *Client, key, channel string, ttl time.Duration) *SnapshotMirror {
	if key == "" {
		key = DefaultSnapshotKey
	}
	if channel == "" {
		channel = DefaultSnapshotChannel
	}
	return &SnapshotMirror{rdb: c.Underlying(), key: key, channel: channel, ttl: ttl}
}

// Publish implements domain.SnapshotSink.
func (m *SnapshotMirror) Publish(ctx context.Context, snap *domain.Snapshot) error {
	payload, err := json.Marshal(snap.View())
	if err != nil {
		return fmt.Errorf("redis: encode snapshot: %w", err)
	}
	_, err = m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, m.key, payload, m.ttl)
		p.Publish(ctx, m.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: mirror snapshot %s: %w", m.key, err)
	}
	return nil
}

// Latest returns the mirrored snapshot, or domain.ErrNotFound when none has
// been published yet.
func (m *SnapshotMirror) Latest(ctx context.Context) (*domain.SnapshotView, error) {
	raw, err := m.rdb.Get(ctx, m.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: snapshot %s: %w", m.key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("redis: get snapshot %s: %w", m.key, err)
	}
	var view domain.SnapshotView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("redis: decode snapshot %s: %w", m.key, err)
	}
	return &view, nil
}
