package ws

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

func openConn(t *testing.T, id string, buffer int) *Conn {
	t.Helper()
	c := newConn(id, newFakeTransport(), t0, buffer)
	require.True(t, c.open(t0))
	return c
}

type countingRecorder struct {
	nopRecorder
	failures map[string]int
}

func (r *countingRecorder) SendFailed(reason string) { r.failures[reason]++ }

func TestFanout_OneFailureDoesNotStopTheBatch(t *testing.T) {
	for k := 0; k < 5; k++ {
		t.Run(fmt.Sprintf("failing conn %d", k), func(t *testing.T) {
			reg := NewRegistry()
			rec := &countingRecorder{failures: map[string]int{}}
			b := NewBroadcaster(reg, nil, time.Second, testLogger(), rec)

			conns := make([]*Conn, 5)
			for i := range conns {
				conns[i] = openConn(t, fmt.Sprintf("c%d", i), 1)
				reg.Add(conns[i])
			}
			// Fill conn k's buffer so the next send is rejected.
			_, err := conns[k].enqueue([]byte("x"), time.Time{})
			require.NoError(t, err)

			rep, err := b.Fanout(snapAt(t0.Add(time.Second), "a"))
			require.NoError(t, err)

			assert.Equal(t, Report{Delivered: 4, Failed: 1}, rep)
			assert.Equal(t, 4, reg.Len())
			assert.Equal(t, 1, rec.failures["buffer_full"])
			for i, c := range conns {
				if i == k {
					assert.Equal(t, StateClosed, c.State())
					_, ok := reg.Get(c.ID())
					assert.False(t, ok)
					continue
				}
				assert.Equal(t, StateOpen, c.State())
				assert.Len(t, c.send, 1)
			}
		})
	}
}

func TestFanout_ClosedConnectionIsRemoved(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, nil, time.Second, testLogger(), nil)

	alive := openConn(t, "alive", 4)
	dying := openConn(t, "dying", 4)
	reg.Add(alive)
	reg.Add(dying)
	dying.Close()

	rep, err := b.Fanout(snapAt(t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, Report{Delivered: 1, Failed: 1}, rep)
	assert.Equal(t, []*Conn{alive}, reg.List())
}

func TestFanout_NoConnections(t *testing.T) {
	b := NewBroadcaster(NewRegistry(), nil, time.Second, testLogger(), nil)
	rep, err := b.Fanout(snapAt(t0))
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}

func TestEnqueue_TimestampsNeverRegress(t *testing.T) {
	c := openConn(t, "c", 8)

	queued, err := c.enqueue([]byte("1"), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = c.enqueue([]byte("2"), t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, queued)

	queued, err = c.enqueue([]byte("3"), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, queued)

	// Control frames carry no timestamp and always go through.
	queued, err = c.enqueue([]byte("pong"), time.Time{})
	require.NoError(t, err)
	assert.True(t, queued)

	assert.Equal(t, t0.Add(2*time.Second), c.LastSeen())
	assert.Len(t, c.send, 2)
}

func TestConnStateMachine(t *testing.T) {
	c := newConn("c", newFakeTransport(), t0, 1)
	assert.Equal(t, StateConnecting, c.State())

	_, err := c.enqueue([]byte("x"), time.Time{})
	assert.ErrorIs(t, err, domain.ErrConnClosed)

	require.True(t, c.open(t0))
	assert.Equal(t, StateOpen, c.State())

	assert.True(t, c.Close())
	assert.False(t, c.Close())
	assert.Equal(t, StateClosing, c.State())
	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}

	// Nothing re-enters Open.
	assert.False(t, c.open(t0))
	assert.Equal(t, StateClosing, c.State())

	c.markClosed()
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.Close())
	assert.Equal(t, "closed", c.State().String())
}

func TestRegistry_RemoveDuringForEach(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 4; i++ {
		reg.Add(openConn(t, fmt.Sprintf("c%d", i), 1))
	}

	var visited []string
	reg.ForEach(func(c *Conn) {
		visited = append(visited, c.ID())
		reg.Remove(c)
	})

	assert.Equal(t, []string{"c0", "c1", "c2", "c3"}, visited)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := openConn(t, "c", 1)
	reg.Add(c)
	reg.Add(c)
	assert.Equal(t, 1, reg.Len())

	assert.True(t, reg.Remove(c))
	assert.False(t, reg.Remove(c))
}
