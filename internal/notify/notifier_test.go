package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSender struct {
	name string
	err  error
	got  []string
}

func (r *recordSender) Send(_ context.Context, title, message string) error {
	r.got = append(r.got, title+"|"+message)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventFill, " flatten "}, quietLogger())

	require.NoError(t, n.Notify(context.Background(), EventFill, "Fill", "BUY 1 ES"))
	require.NoError(t, n.Notify(context.Background(), EventDisconnected, "Down", "lost"))
	require.NoError(t, n.Notify(context.Background(), EventFlatten, "Flat", "closed 1"))

	assert.Equal(t, []string{"Fill|BUY 1 ES", "Flat|closed 1"}, s.got)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, quietLogger())
	require.NoError(t, n.Notify(context.Background(), "anything", "T", "M"))
	assert.Len(t, s.got, 1)
}

func TestNotifier_SenderFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("boom")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), EventFill, "T", "M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.got, 1)
}

func TestNotifier_Cooldown(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, quietLogger()).WithCooldown(time.Minute)
	now := time.Date(2026, 1, 2, 14, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, EventDisconnected, "Down", "1"))
	require.NoError(t, n.Notify(ctx, EventDisconnected, "Down", "2"))
	require.NoError(t, n.Notify(ctx, EventFill, "Fill", "a"))
	require.NoError(t, n.Notify(ctx, EventFill, "Fill", "b"))

	now = now.Add(2 * time.Minute)
	require.NoError(t, n.Notify(ctx, EventDisconnected, "Down", "3"))

	assert.Equal(t, []string{"Down|1", "Fill|a", "Fill|b", "Down|3"}, s.got)
}

func TestDiscordSender(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Fill", "BUY 1 ES @ 5000"))
	assert.Equal(t, "**Fill**\nBUY 1 ES @ 5000", body["content"])
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "T", "M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 404")
}

func TestTelegramSender(t *testing.T) {
	var (
		path string
		body map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("abc:123", "42").WithAPIBase(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Flattened", "closed 2"))

	assert.Equal(t, "/botabc:123/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "*Flattened*\nclosed 2", body["text"])
	assert.Equal(t, "Markdown", body["parse_mode"])
}
