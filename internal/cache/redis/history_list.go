package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// DefaultHistoryKey is the list holding removed matches, oldest first.
const DefaultHistoryKey = "livefeed:history"

// HistoryList implements domain.HistoryStore on a Redis list trimmed to a
// fixed length on every append.
type HistoryList struct {
	rdb    *redis.Client
	key    string
	retain int
}

// NewHistoryList creates a HistoryList keeping at most retain entries.
func NewHistoryList(c *Client, key string, retain int) *HistoryList {
	if key == "" {
		key = DefaultHistoryKey
	}
	if retain <= 0 {
		retain = 1000
	}
	return &HistoryList{rdb: c.Underlying(), key: key, retain: retain}
}

func (h *HistoryList) Append(ctx context.Context, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	_, err = h.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, h.key, values...)
		p.LTrim(ctx, h.key, int64(-h.retain), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: append history: %w", err)
	}
	return nil
}

// Recent returns the newest n entries, oldest first. Entries that no longer
// decode are skipped.
func (h *HistoryList) Recent(ctx context.Context, n int) ([]domain.HistoryEntry, error) {
	if n <= 0 {
		n = domain.DefaultHistoryWindow
	}
	raw, err := h.rdb.LRange(ctx, h.key, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read history: %w", err)
	}
	return decodeEntries(raw), nil
}

// Prune trims the list to its newest retain entries and reports how many
// were dropped.
func (h *HistoryList) Prune(ctx context.Context, retain int) (int64, error) {
	var before *redis.IntCmd
	_, err := h.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		before = p.LLen(ctx, h.key)
		p.LTrim(ctx, h.key, int64(-retain), -1)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: prune history: %w", err)
	}
	return max(before.Val()-int64(retain), 0), nil
}

func encodeEntries(entries []domain.HistoryEntry) ([]interface{}, error) {
	out := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("redis: encode history entry %s: %w", e.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeEntries(raw []string) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(raw))
	for _, s := range raw {
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}
