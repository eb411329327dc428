// Package integration: end-to-end tests for the client SDK and its
// reconciliation timeline against a live hub.
package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/Rishab-Kumar09/ChatGenius/internal/client"
	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
	"github.com/Rishab-Kumar09/ChatGenius/test/testhelpers"
)

func sdkURL(ts *testhelpers.TestServer) string {
	return "ws" + strings.TrimPrefix(ts.HTTP.URL, "http") + "/ws"
}

func newSDKClient(t *testing.T, ts *testhelpers.TestServer, user string) *client.Client {
	t.Helper()

	c, err := client.New(client.Options{URL: sdkURL(ts), UserID: user})
	if err != nil {
		t.Fatalf("Failed to build client for %s: %v", user, err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("Failed to connect as %s: %v", user, err)
	}
	t.Cleanup(c.Close)
	return c
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", desc)
}

// TestOptimisticSendIsConfirmed verifies the placeholder/confirm dance:
// a sent message appears immediately as a pending placeholder and ends
// as exactly one confirmed entry carrying the canonical id.
func TestOptimisticSendIsConfirmed(t *testing.T) {
	ts := testhelpers.NewTestServer(t)
	seedMembers(t, ts, "1", "jane")

	jane := newSDKClient(t, ts, "jane")

	placeholder, err := jane.SendMessage("hello", "1", "", "")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !protocol.IsTempID(placeholder.ID) {
		t.Errorf("Placeholder id %q missing temp prefix", placeholder.ID)
	}
	if !placeholder.Pending() {
		t.Error("Placeholder not marked pending")
	}

	waitFor(t, 2*time.Second, func() bool {
		msgs := jane.Timeline().Messages()
		return len(msgs) == 1 && msgs[0].State == client.StateConfirmed
	}, "confirmation to replace the placeholder")

	msgs := jane.Timeline().Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected exactly one timeline entry, got %d", len(msgs))
	}
	final := msgs[0]
	if final.Content != "hello" {
		t.Errorf("Expected content hello, got %q", final.Content)
	}
	if protocol.IsTempID(final.ID) || final.ID == "" {
		t.Errorf("Confirmed entry carries non-canonical id %q", final.ID)
	}
}

// TestTwoClientsShareTimeline verifies bob's timeline receives jane's
// message exactly once with the same canonical id jane holds.
func TestTwoClientsShareTimeline(t *testing.T) {
	ts := testhelpers.NewTestServer(t)
	seedMembers(t, ts, "1", "jane", "bob")

	jane := newSDKClient(t, ts, "jane")
	bob := newSDKClient(t, ts, "bob")

	if _, err := jane.SendMessage("hi", "1", "", ""); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(bob.Timeline().Messages()) == 1
	}, "jane's message to reach bob")
	waitFor(t, 2*time.Second, func() bool {
		msgs := jane.Timeline().Messages()
		return len(msgs) == 1 && msgs[0].State == client.StateConfirmed
	}, "jane's confirmation")

	bobView := bob.Timeline().Messages()[0]
	janeView := jane.Timeline().Messages()[0]
	if bobView.ID != janeView.ID {
		t.Errorf("Canonical ids diverge: jane %q, bob %q", janeView.ID, bobView.ID)
	}
	if bobView.SenderID != "jane" {
		t.Errorf("Expected sender jane, got %q", bobView.SenderID)
	}

	// No duplicate arrives later.
	time.Sleep(200 * time.Millisecond)
	if got := len(bob.Timeline().Messages()); got != 1 {
		t.Errorf("Expected exactly one entry in bob's timeline, got %d", got)
	}
}

// TestPresenceAndTypingFlow verifies fire-and-forget presence and
// typing sends surface on the other client's event callback.
func TestPresenceAndTypingFlow(t *testing.T) {
	ts := testhelpers.NewTestServer(t)

	events := make(chan protocol.Event, 16)
	bobClient, err := client.New(client.Options{
		URL:    sdkURL(ts),
		UserID: "bob",
		OnEvent: func(evt protocol.Event) {
			events <- evt
		},
	})
	if err != nil {
		t.Fatalf("Failed to build bob: %v", err)
	}
	if err := bobClient.Connect(); err != nil {
		t.Fatalf("Failed to connect bob: %v", err)
	}
	t.Cleanup(bobClient.Close)

	jane := newSDKClient(t, ts, "jane")
	if err := jane.SetStatus(protocol.StatusBusy); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := jane.SetTyping("general", "", true); err != nil {
		t.Fatalf("SetTyping failed: %v", err)
	}

	sawPresence, sawTyping := false, false
	deadline := time.After(2 * time.Second)
	for !(sawPresence && sawTyping) {
		select {
		case evt := <-events:
			switch evt.Type {
			case protocol.EventPresenceUpdate:
				if evt.UserID == "jane" && evt.Status == protocol.StatusBusy {
					sawPresence = true
				}
			case protocol.EventTypingIndicator:
				if evt.UserID == "jane" && evt.Typing() {
					sawTyping = true
				}
			}
		case <-deadline:
			t.Fatalf("Timed out: presence=%v typing=%v", sawPresence, sawTyping)
		}
	}
}
