// Package testhelpers provides common utilities for testing the
// ChatGenius hub: spinning up a full server over an in-memory store,
// dialing WebSocket clients, and reading typed events with deadlines.
package testhelpers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rishab-Kumar09/ChatGenius/internal/auth"
	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
	"github.com/Rishab-Kumar09/ChatGenius/internal/server"
	"github.com/Rishab-Kumar09/ChatGenius/internal/store"
)

// TestServer bundles a running hub with its HTTP test server and the
// backing in-memory store.
type TestServer struct {
	Server *server.Server
	HTTP   *httptest.Server
	Store  *store.Memory
}

// NewTestServer starts a fully wired server over an in-memory store in
// insecure auth mode. Cleanup is registered on t.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return NewTestServerWithConfig(t, testConfig())
}

// NewTestServerWithConfig starts a server with a custom configuration.
func NewTestServerWithConfig(t *testing.T, cfg server.Config) *TestServer {
	t.Helper()

	st := store.NewMemory()
	srv := server.NewServer(cfg, st, auth.NewService(cfg.AuthSecret, time.Hour))
	srv.StartHub()

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		if err := srv.Hub().Shutdown(2 * time.Second); err != nil {
			t.Logf("hub shutdown: %v", err)
		}
	})

	return &TestServer{Server: srv, HTTP: ts, Store: st}
}

func testConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	cfg.RateLimit.Burst = 100
	return cfg
}

// WebSocketURL converts the HTTP test server URL into the hub's
// WebSocket endpoint for the given user.
func (s *TestServer) WebSocketURL(user string) string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws?user=" + user
}

// Dial opens a WebSocket connection as the given user and registers its
// cleanup on t.
func (s *TestServer) Dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(s.WebSocketURL(user), nil)
	if err != nil {
		t.Fatalf("Failed to dial as %s: %v", user, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadEvent reads the next event frame within the timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) (protocol.Event, bool) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return protocol.Event{}, false
	}
	evt, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Received undecodable frame: %v", err)
	}
	return evt, true
}

// WaitForEvent reads frames until one of the wanted type arrives,
// failing the test when the timeout elapses first.
func WaitForEvent(t *testing.T, conn *websocket.Conn, want protocol.EventType, timeout time.Duration) protocol.Event {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s event", want)
		}
		evt, ok := ReadEvent(t, conn, remaining)
		if !ok {
			t.Fatalf("Connection closed while waiting for %s event", want)
		}
		if evt.Type == want {
			return evt
		}
	}
}

// ExpectNoEvent asserts that no event of the given type arrives within
// the window.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, unwanted protocol.EventType, window time.Duration) {
	t.Helper()

	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		evt, ok := ReadEvent(t, conn, remaining)
		if !ok {
			return
		}
		if evt.Type == unwanted {
			t.Fatalf("Received unexpected %s event: %+v", unwanted, evt)
		}
	}
}

// SendEvent writes one event frame to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, evt protocol.Event) {
	t.Helper()

	payload, err := evt.Encode()
	if err != nil {
		t.Fatalf("Failed to encode %s event: %v", evt.Type, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send %s event: %v", evt.Type, err)
	}
}

// Handshake consumes the connection_established and presence_state
// frames the hub sends immediately after admission.
func Handshake(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	WaitForEvent(t, conn, protocol.EventConnectionEstablished, 2*time.Second)
	WaitForEvent(t, conn, protocol.EventPresenceState, 2*time.Second)
}
