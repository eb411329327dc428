// Package integration contains integration tests that exercise the hub
// over real WebSocket connections.
//
// These tests verify the broadcast, confirmation, presence, and typing
// behavior observable by multiple connected clients.
package integration

import (
	"testing"
	"time"

	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
	"github.com/Rishab-Kumar09/ChatGenius/test/testhelpers"
)

// TestMessageConfirmationScenario runs the canonical two-client flow:
// jane sends a message, receives exactly one confirmation carrying the
// canonical id, bob receives exactly one broadcast copy, and jane never
// receives a second copy of her own message.
func TestMessageConfirmationScenario(t *testing.T) {
	ts := testhelpers.NewTestServer(t)
	seedMembers(t, ts, "1", "jane", "bob")

	jane := ts.Dial(t, "jane")
	testhelpers.Handshake(t, jane)
	bob := ts.Dial(t, "bob")
	testhelpers.Handshake(t, bob)

	tempID := protocol.NewTempID()
	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:         protocol.EventNewMessage,
		UserID:       "jane",
		Content:      "hi",
		ChannelID:    "1",
		ClientTempID: tempID,
	})

	confirm := testhelpers.WaitForEvent(t, jane, protocol.EventMessageConfirmed, 2*time.Second)
	if confirm.ID == "" || protocol.IsTempID(confirm.ID) {
		t.Fatalf("Confirmation carries no canonical id: %q", confirm.ID)
	}
	if confirm.Content != "hi" || confirm.ChannelID != "1" {
		t.Errorf("Confirmation payload mismatch: %+v", confirm)
	}
	if confirm.ClientTempID != tempID {
		t.Errorf("Confirmation did not echo correlation id: got %q, want %q", confirm.ClientTempID, tempID)
	}
	if confirm.Timestamp.IsZero() {
		t.Error("Confirmation missing canonical timestamp")
	}

	broadcast := testhelpers.WaitForEvent(t, bob, protocol.EventNewMessage, 2*time.Second)
	if broadcast.ID != confirm.ID {
		t.Errorf("Broadcast id %q does not match canonical id %q", broadcast.ID, confirm.ID)
	}
	if broadcast.UserID != "jane" || broadcast.Content != "hi" {
		t.Errorf("Broadcast payload mismatch: %+v", broadcast)
	}
	if broadcast.ReadBy == nil {
		t.Error("Broadcast missing readBy field")
	}

	// Exactly one confirmation to the sender, and never the broadcast.
	testhelpers.ExpectNoEvent(t, jane, protocol.EventNewMessage, 300*time.Millisecond)
	testhelpers.ExpectNoEvent(t, jane, protocol.EventMessageConfirmed, 300*time.Millisecond)
	// Exactly one broadcast copy for bob.
	testhelpers.ExpectNoEvent(t, bob, protocol.EventNewMessage, 300*time.Millisecond)
}

// TestBroadcastFanOutExclusion verifies that a typing indicator reaches
// every connection except its originator.
func TestBroadcastFanOutExclusion(t *testing.T) {
	ts := testhelpers.NewTestServer(t)

	jane := ts.Dial(t, "jane")
	testhelpers.Handshake(t, jane)
	bob := ts.Dial(t, "bob")
	testhelpers.Handshake(t, bob)
	carol := ts.Dial(t, "carol")
	testhelpers.Handshake(t, carol)

	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:      protocol.EventTypingIndicator,
		UserID:    "jane",
		ChannelID: "general",
		IsTyping:  protocol.BoolPtr(true),
	})

	evt := testhelpers.WaitForEvent(t, bob, protocol.EventTypingIndicator, 2*time.Second)
	if evt.UserID != "jane" || !evt.Typing() {
		t.Errorf("Bob saw unexpected typing event: %+v", evt)
	}
	evt = testhelpers.WaitForEvent(t, carol, protocol.EventTypingIndicator, 2*time.Second)
	if evt.UserID != "jane" || !evt.Typing() {
		t.Errorf("Carol saw unexpected typing event: %+v", evt)
	}
	testhelpers.ExpectNoEvent(t, jane, protocol.EventTypingIndicator, 300*time.Millisecond)
}

// TestPresenceUpdateReachesEveryone verifies presence updates are
// rebroadcast to all connections, originator included, with lastSeen
// stamped by the server.
func TestPresenceUpdateReachesEveryone(t *testing.T) {
	ts := testhelpers.NewTestServer(t)

	jane := ts.Dial(t, "jane")
	testhelpers.Handshake(t, jane)
	bob := ts.Dial(t, "bob")
	testhelpers.Handshake(t, bob)

	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:   protocol.EventPresenceUpdate,
		UserID: "jane",
		Status: protocol.StatusBusy,
	})

	evtJane := testhelpers.WaitForEvent(t, jane, protocol.EventPresenceUpdate, 2*time.Second)
	evtBob := testhelpers.WaitForEvent(t, bob, protocol.EventPresenceUpdate, 2*time.Second)
	for _, evt := range []protocol.Event{evtJane, evtBob} {
		if evt.UserID != "jane" || evt.Status != protocol.StatusBusy {
			t.Errorf("Unexpected presence payload: %+v", evt)
		}
		if evt.LastSeen == nil || evt.LastSeen.IsZero() {
			t.Errorf("Presence update missing stamped lastSeen: %+v", evt)
		}
	}
}

// TestPresenceReplayToLateJoiner verifies a newly admitted connection
// receives the full presence snapshot without it being broadcast to
// existing connections.
func TestPresenceReplayToLateJoiner(t *testing.T) {
	ts := testhelpers.NewTestServer(t)

	jane := ts.Dial(t, "jane")
	testhelpers.Handshake(t, jane)
	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:   protocol.EventPresenceUpdate,
		UserID: "jane",
		Status: protocol.StatusBusy,
	})
	testhelpers.WaitForEvent(t, jane, protocol.EventPresenceUpdate, 2*time.Second)

	bob := ts.Dial(t, "bob")
	testhelpers.WaitForEvent(t, bob, protocol.EventConnectionEstablished, 2*time.Second)
	state := testhelpers.WaitForEvent(t, bob, protocol.EventPresenceState, 2*time.Second)

	found := false
	for _, entry := range state.Presence {
		if entry.UserID == "jane" && entry.Status == protocol.StatusBusy {
			found = true
		}
	}
	if !found {
		t.Errorf("Presence replay missing jane's busy status: %+v", state.Presence)
	}

	// The replay is addressed to the late joiner only.
	testhelpers.ExpectNoEvent(t, jane, protocol.EventPresenceState, 300*time.Millisecond)
}

// TestEvictionBroadcastsOffline verifies that closing a connection
// yields exactly one presence-offline broadcast for its user.
func TestEvictionBroadcastsOffline(t *testing.T) {
	ts := testhelpers.NewTestServer(t)

	jane := ts.Dial(t, "jane")
	testhelpers.Handshake(t, jane)
	bob := ts.Dial(t, "bob")
	testhelpers.Handshake(t, bob)

	if err := bob.Close(); err != nil {
		t.Logf("bob close: %v", err)
	}

	evt := testhelpers.WaitForEvent(t, jane, protocol.EventPresenceUpdate, 2*time.Second)
	if evt.UserID != "bob" || evt.Status != protocol.StatusOffline {
		t.Errorf("Expected offline broadcast for bob, got %+v", evt)
	}
	testhelpers.ExpectNoEvent(t, jane, protocol.EventPresenceUpdate, 300*time.Millisecond)
}

// TestMessageEditAndDeleteFanOut verifies edit and delete notifications
// reach all connections, the originator included.
func TestMessageEditAndDeleteFanOut(t *testing.T) {
	ts := testhelpers.NewTestServer(t)
	seedMembers(t, ts, "1", "jane", "bob")

	jane := ts.Dial(t, "jane")
	testhelpers.Handshake(t, jane)
	bob := ts.Dial(t, "bob")
	testhelpers.Handshake(t, bob)

	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:      protocol.EventNewMessage,
		UserID:    "jane",
		Content:   "first draft",
		ChannelID: "1",
	})
	confirm := testhelpers.WaitForEvent(t, jane, protocol.EventMessageConfirmed, 2*time.Second)
	testhelpers.WaitForEvent(t, bob, protocol.EventNewMessage, 2*time.Second)

	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:      protocol.EventMessageEdited,
		MessageID: confirm.ID,
		Content:   "second draft",
	})
	edited := testhelpers.WaitForEvent(t, bob, protocol.EventMessageEdited, 2*time.Second)
	if edited.MessageID != confirm.ID || edited.Content != "second draft" {
		t.Errorf("Unexpected edit payload: %+v", edited)
	}
	testhelpers.WaitForEvent(t, jane, protocol.EventMessageEdited, 2*time.Second)

	testhelpers.SendEvent(t, bob, protocol.Event{
		Type:      protocol.EventMessageDeleted,
		MessageID: confirm.ID,
	})
	deleted := testhelpers.WaitForEvent(t, jane, protocol.EventMessageDeleted, 2*time.Second)
	if deleted.MessageID != confirm.ID || deleted.UserID != "bob" {
		t.Errorf("Unexpected delete payload: %+v", deleted)
	}
}

// TestValidationDropsSilently verifies malformed messages produce no
// confirmation and no broadcast.
func TestValidationDropsSilently(t *testing.T) {
	ts := testhelpers.NewTestServer(t)
	seedMembers(t, ts, "1", "jane", "bob")

	jane := ts.Dial(t, "jane")
	testhelpers.Handshake(t, jane)
	bob := ts.Dial(t, "bob")
	testhelpers.Handshake(t, bob)

	// Empty content after trimming.
	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:      protocol.EventNewMessage,
		UserID:    "jane",
		Content:   "   ",
		ChannelID: "1",
	})
	// Both conversation references set.
	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:      protocol.EventNewMessage,
		UserID:    "jane",
		Content:   "hello",
		ChannelID: "1",
		DMID:      "7",
	})
	// Unknown parent.
	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:      protocol.EventNewMessage,
		UserID:    "jane",
		Content:   "reply",
		ChannelID: "1",
		ParentID:  "does-not-exist",
	})

	testhelpers.ExpectNoEvent(t, jane, protocol.EventMessageConfirmed, 400*time.Millisecond)
	testhelpers.ExpectNoEvent(t, bob, protocol.EventNewMessage, 400*time.Millisecond)
}

// TestAuthorizationErrorReply verifies that posting to a channel the
// sender is not a member of produces an explicit error reply and no
// persistence or broadcast.
func TestAuthorizationErrorReply(t *testing.T) {
	ts := testhelpers.NewTestServer(t)
	seedMembers(t, ts, "private", "bob")

	jane := ts.Dial(t, "jane")
	testhelpers.Handshake(t, jane)
	bob := ts.Dial(t, "bob")
	testhelpers.Handshake(t, bob)

	testhelpers.SendEvent(t, jane, protocol.Event{
		Type:      protocol.EventNewMessage,
		UserID:    "jane",
		Content:   "let me in",
		ChannelID: "private",
	})

	errEvt := testhelpers.WaitForEvent(t, jane, protocol.EventError, 2*time.Second)
	if errEvt.Code != "not_a_member" {
		t.Errorf("Expected not_a_member error code, got %q", errEvt.Code)
	}
	testhelpers.ExpectNoEvent(t, jane, protocol.EventMessageConfirmed, 300*time.Millisecond)
	testhelpers.ExpectNoEvent(t, bob, protocol.EventNewMessage, 300*time.Millisecond)
}

func seedMembers(t *testing.T, ts *testhelpers.TestServer, channel string, users ...string) {
	t.Helper()
	for _, user := range users {
		if err := ts.Store.AddMember(t.Context(), user, channel); err != nil {
			t.Fatalf("Failed to seed membership %s/%s: %v", channel, user, err)
		}
	}
}
