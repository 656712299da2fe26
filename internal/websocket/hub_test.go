package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"go-request-guard/internal/event"
)

func startHub(t *testing.T) (*Hub, *event.InMemoryBus, context.CancelFunc) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := event.NewBus(logger)
	hub := NewHub(bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	return hub, bus, cancel
}

func dial(t *testing.T, hub *Hub, types []event.Type, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	upgrader := Upgrader([]string{"https://admin.example.com"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(upgrader, w, r, "admin-1", types)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readEvent(t *testing.T, conn *websocket.Conn) event.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var e event.Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestHubStreamsFilteredEvents(t *testing.T) {
	hub, bus, _ := startHub(t)

	conn, _, err := dial(t, hub, []event.Type{event.TypeCSRFRejected}, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	bus.Publish(event.New(event.TypeRateLimitExceeded, "", event.Denial{Path: "/a"}))
	bus.Publish(event.New(event.TypeCSRFRejected, "user-4", event.Denial{Path: "/api/admin/customers", Code: "CSRF_REQUIRED"}))

	e := readEvent(t, conn)
	require.Equal(t, event.TypeCSRFRejected, e.Type)
	require.Equal(t, "user-4", e.ActorID)
}

func TestHubStreamsEverythingWithoutFilter(t *testing.T) {
	hub, bus, _ := startHub(t)

	conn, _, err := dial(t, hub, nil, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	bus.Publish(event.New(event.TypeAuthzDenied, "user-5", nil))
	require.Equal(t, event.TypeAuthzDenied, readEvent(t, conn).Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub, _, _ := startHub(t)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.net")
	_, resp, err := dial(t, hub, nil, header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHubDisconnectsOnShutdown(t *testing.T) {
	hub, _, cancel := startHub(t)

	conn, _, err := dial(t, hub, nil, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure), "unexpected error: %v", err)
	require.Equal(t, 0, hub.Clients())

	_, _, err = dial(t, hub, nil, nil)
	require.Error(t, err)
}

func TestHubShortensClientDetails(t *testing.T) {
	hub, bus, _ := startHub(t)
	audit, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	conn, _, err := dial(t, hub, nil, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	bus.Publish(event.New(event.TypeRateLimitExceeded, "", event.Denial{
		Path:      "/api/v1/validate/login",
		ClientIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		Code:      "RATE_LIMIT_EXCEEDED",
	}))

	streamed := readEvent(t, conn)
	payload, ok := streamed.Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "203.0.11...", payload["client_ip"])
	require.NotContains(t, payload, "user_agent")
	require.Equal(t, "RATE_LIMIT_EXCEEDED", payload["code"])

	select {
	case e := <-audit:
		denial, ok := e.Payload.(event.Denial)
		require.True(t, ok)
		require.Equal(t, "203.0.113.7", denial.ClientIP)
		require.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)", denial.UserAgent)
	case <-time.After(2 * time.Second):
		t.Fatal("bus subscriber did not receive the event")
	}
}
