package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// These tests need a disposable Redis; set LIVEFEED_TEST_REDIS_ADDR to run them.
func setupTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("LIVEFEED_TEST_REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("skipping integration test: LIVEFEED_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	c, err := New(ctx, ClientConfig{Addr: addr, DB: 15}, NewBreakerHook(BreakerConfig{}, testLogger(), nil))
	require.NoError(t, err)
	require.NoError(t, c.Underlying().FlushDB(ctx).Err())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSnapshotMirror_Integration(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()
	m := NewSnapshotMirror(c, "", "", time.Minute)

	_, err := m.Latest(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	sub := c.Underlying().Subscribe(ctx, DefaultSnapshotChannel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	snap := &domain.Snapshot{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Matches:   []domain.Match{{ID: "m1", Teams: domain.Teams{Home: "A", Away: "B"}}},
		Summary:   domain.Summary{TotalMatches: 1, PregameMatches: 1, SportsProcessed: 1},
	}
	require.NoError(t, m.Publish(ctx, snap))

	view, err := m.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.TimestampString(), view.Timestamp)
	assert.Equal(t, 1, view.Summary.TotalMatches)

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"m1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no pubsub message")
	}
}

func TestHistoryList_Integration(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()
	h := NewHistoryList(c, "", 5)

	for i := 0; i < 7; i++ {
		require.NoError(t, h.Append(ctx, []domain.HistoryEntry{{ID: fmt.Sprint(i), Status: "Removed"}}))
	}

	got, err := h.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "6", got[2].ID)

	all, _ := h.Recent(ctx, 100)
	assert.Len(t, all, 5)

	n, err := h.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	all, _ = h.Recent(ctx, 100)
	assert.Len(t, all, 2)
}
