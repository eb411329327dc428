package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoBackend is a WebSocket server that tracks its accepted
// connections so tests can sever live sessions explicitly. Closing the
// httptest server alone is not enough: hijacked connections outlive it.
type echoBackend struct {
	ts       *httptest.Server
	accepted chan struct{}

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newEchoBackend(t *testing.T) *echoBackend {
	t.Helper()

	b := &echoBackend{accepted: make(chan struct{}, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	b.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()
		select {
		case b.accepted <- struct{}{}:
		default:
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(b.ts.Close)
	return b
}

func (b *echoBackend) url() string {
	return "ws" + strings.TrimPrefix(b.ts.URL, "http") + "/ws"
}

// sever closes every server-side connection, dropping the live sessions
// without stopping the listener.
func (b *echoBackend) sever() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		_ = conn.Close()
	}
	b.conns = nil
}

func (b *echoBackend) waitAccepted(t *testing.T) {
	t.Helper()
	select {
	case <-b.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("Server never accepted the connection")
	}
}

// waitState consumes state transitions until the wanted one arrives. An
// unexpected terminal disconnect fails the test immediately.
func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
			if s == StateDisconnected {
				t.Fatalf("Client disconnected while waiting for %s state", want)
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %s state", want)
		}
	}
}

func TestFirstDialFailureIsTerminal(t *testing.T) {
	c, err := New(Options{URL: "ws://127.0.0.1:1/ws", UserID: "jane"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Connect(); err == nil {
		t.Fatal("Expected Connect to fail against a dead address")
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State after failed dial = %v, want %v", got, StateDisconnected)
	}
}

func TestSendBeforeConnectReturnsPlaceholder(t *testing.T) {
	c, err := New(Options{URL: "ws://127.0.0.1:1/ws", UserID: "jane"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	placeholder, err := c.SendMessage("hello", "1", "", "")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendMessage error = %v, want ErrNotConnected", err)
	}
	if !placeholder.Pending() {
		t.Error("Placeholder should be pending even when the write fails")
	}
	if msgs := c.Timeline().Messages(); len(msgs) != 1 {
		t.Errorf("Timeline should keep the unsent placeholder, got %+v", msgs)
	}
}

func TestReconnectWalksBackoffScheduleThenGivesUp(t *testing.T) {
	backend := newEchoBackend(t)

	states := make(chan State, 16)
	c, err := New(Options{
		URL:     backend.url(),
		UserID:  "jane",
		OnState: func(s State) { states <- s },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Record the schedule instead of waiting it out.
	var mu sync.Mutex
	var delays []time.Duration
	c.sleep = func(d time.Duration) {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
	}

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()
	backend.waitAccepted(t)
	waitState(t, states, StateConnected)

	// Stop the listener first so every redial is refused, then drop the
	// live session to trigger the reconnect path.
	backend.ts.Close()
	backend.sever()

	waitState(t, states, StateReconnecting)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-states:
			if s == StateDisconnected {
				goto done
			}
			if s == StateConnected {
				t.Fatal("Client reconnected to a dead server")
			}
		case <-deadline:
			t.Fatal("Client never reached the disconnected state")
		}
	}

done:
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
	}
	mu.Lock()
	defer mu.Unlock()
	if len(delays) != len(want) {
		t.Fatalf("Reconnect slept %d times (%v), want %d", len(delays), delays, len(want))
	}
	for i, d := range want {
		if delays[i] != d {
			t.Errorf("Delay %d = %v, want %v", i+1, delays[i], d)
		}
	}
}

func TestReconnectRecoversWhenServerReturns(t *testing.T) {
	backend := newEchoBackend(t)

	states := make(chan State, 16)
	c, err := New(Options{
		URL:     backend.url(),
		UserID:  "jane",
		OnState: func(s State) { states <- s },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.sleep = func(time.Duration) {}

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()
	backend.waitAccepted(t)

	// Consume the initial connected transition so the one observed after
	// the outage is unambiguously from a reconnect.
	waitState(t, states, StateConnected)

	// Drop the session but keep the server listening: the first redial
	// should succeed and the client come back to connected.
	backend.sever()

	waitState(t, states, StateReconnecting)
	waitState(t, states, StateConnected)
	backend.waitAccepted(t)
}
