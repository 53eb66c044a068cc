package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotify_FiltersEvents(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, []string{EventSourceCorrupt}, time.Minute, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventDetectorBackoff, "backoff", ""))
	require.NoError(t, n.Notify(context.Background(), EventSourceCorrupt, "corrupt", ""))

	assert.Equal(t, []string{"corrupt"}, s.titles)
}

func TestNotify_RateLimitsPerEvent(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, nil, time.Hour, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventSourceCorrupt, "first", ""))
	require.NoError(t, n.Notify(ctx, EventSourceCorrupt, "second", ""))
	require.NoError(t, n.Notify(ctx, EventDetectorBackoff, "other", ""))

	assert.Equal(t, []string{"first", "other"}, s.titles)
}

func TestNotify_OneSenderFailureDoesNotStopOthers(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("down")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, time.Minute, testLogger())

	err := n.Notify(context.Background(), EventSinkFailing, "sink", "redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Equal(t, []string{"sink"}, good.titles)
}

func TestNotify_NilNotifier(t *testing.T) {
	var n *Notifier
	assert.NoError(t, n.Notify(context.Background(), EventSourceCorrupt, "t", "m"))
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "Source corrupt", strings.Repeat("x", 3000)))
	assert.True(t, strings.HasPrefix(got["content"], "**Source corrupt**\n"))
	assert.Len(t, got["content"], discordMaxContent)
}

func TestTelegramSender(t *testing.T) {
	var path string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	tg := NewTelegramSender("TOKEN", "42")
	tg.baseURL = srv.URL
	err := tg.Send(context.Background(), "Backoff", "live feed stalled")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Backoff*\nlive feed stalled", got["text"])
}
