package devsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, store string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?store=" + store
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func newServer(t *testing.T, opts ...Option) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		_ = h.Shutdown(context.Background())
	})
	return h, srv
}

func TestPublishReachesStoreSubscribers(t *testing.T) {
	h, srv := newServer(t)
	mine := dial(t, srv, "123")
	other := dial(t, srv, "456")
	require.Eventually(t, func() bool { return h.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Publish(Event{Type: EventThemeChanged, StoreID: "123", Paths: []string{"sections/hero.liquid"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := mine.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, EventThemeChanged, ev.Type)
	assert.Equal(t, "123", ev.StoreID)
	assert.Equal(t, []string{"sections/hero.liquid"}, ev.Paths)
	assert.False(t, ev.At.IsZero())

	short, cancelShort := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShort()
	_, _, err = other.Read(short)
	assert.Error(t, err, "subscriber of another store must not receive the event")
}

func TestMissingStoreParameter(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForeignOriginRejected(t *testing.T) {
	h, srv := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?store=123"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	assert.Zero(t, h.Clients())
}

func TestAllowedOrigin(t *testing.T) {
	h, srv := newServer(t, WithOrigins("editor.storefront.local"))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?store=123"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://editor.storefront.local"}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()
	assert.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectUnregisters(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv, "123")
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestShutdown(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv, "123")
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	require.NoError(t, h.Shutdown(ctx), "shutdown is idempotent")

	assert.Zero(t, h.Clients())
	assert.ErrorIs(t, h.Publish(Event{StoreID: "123"}), ErrClosed)

	_, _, err := conn.Read(ctx)
	assert.Error(t, err)
}
