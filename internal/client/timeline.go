// Package client implements the ChatGenius client SDK: a WebSocket
// connection manager with serialized reconnects and the reconciliation
// timeline that merges locally-optimistic sends with server-confirmed
// events into a single ordered message view.
package client

import (
	"sort"
	"sync"
	"time"

	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
)

// MessageState tracks where a timeline entry is in its lifecycle.
type MessageState int

const (
	// StateConfirmed entries carry a canonical store-assigned id.
	StateConfirmed MessageState = iota
	// StatePending entries are optimistic placeholders awaiting
	// confirmation.
	StatePending
	// StateFailed entries are placeholders whose confirmation never
	// arrived within the send timeout.
	StateFailed
)

// ClientMessage is one entry in the reconciled message view. Exactly one
// entry exists per logical message once confirmed: a placeholder is
// superseded, never duplicated, by its confirmed counterpart.
type ClientMessage struct {
	ID        string
	Content   string
	SenderID  string
	ChannelID string
	DMID      string
	ParentID  string
	Timestamp time.Time
	State     MessageState

	sentAt time.Time
}

// Pending reports whether the entry is an unconfirmed placeholder.
func (m ClientMessage) Pending() bool { return m.State == StatePending }

// Timeline maintains the ordered message sequence for one local user,
// re-sorted by timestamp on every mutation with arrival order breaking
// ties.
type Timeline struct {
	mu     sync.Mutex
	selfID string
	msgs   []ClientMessage

	now func() time.Time
}

// NewTimeline creates a timeline for the given local user id.
func NewTimeline(selfID string) *Timeline {
	return &Timeline{selfID: selfID, now: time.Now}
}

// AppendLocal appends an optimistic placeholder for a message the local
// user just sent and returns it. The placeholder id carries the
// reserved temp prefix and is never treated as canonical.
func (t *Timeline) AppendLocal(content, channelID, dmID, parentID string) ClientMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	m := ClientMessage{
		ID:        protocol.NewTempID(),
		Content:   content,
		SenderID:  t.selfID,
		ChannelID: channelID,
		DMID:      dmID,
		ParentID:  parentID,
		Timestamp: now,
		State:     StatePending,
		sentAt:    now,
	}
	t.msgs = append(t.msgs, m)
	t.sortLocked()
	return m
}

// Apply merges one server event into the timeline. Applying the same
// confirmed event twice leaves the timeline unchanged.
func (t *Timeline) Apply(evt protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch evt.Type {
	case protocol.EventMessageConfirmed:
		t.confirmLocked(evt, t.selfID)
	case protocol.EventNewMessage:
		t.confirmLocked(evt, evt.UserID)
	case protocol.EventMessageEdited:
		if i := t.indexLocked(evt.MessageID); i >= 0 {
			t.msgs[i].Content = evt.Content
		}
	case protocol.EventMessageDeleted:
		if i := t.indexLocked(evt.MessageID); i >= 0 {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
		}
	}
}

// confirmLocked merges a confirmed message event attributed to sender.
// A matching pending placeholder from the local user is replaced in
// place; a duplicate canonical id is ignored; anything else appends.
func (t *Timeline) confirmLocked(evt protocol.Event, sender string) {
	if evt.ID == "" || t.indexLocked(evt.ID) >= 0 {
		return
	}

	confirmed := ClientMessage{
		ID:        evt.ID,
		Content:   evt.Content,
		SenderID:  sender,
		ChannelID: evt.ChannelID,
		DMID:      evt.DMID,
		ParentID:  evt.ParentID,
		Timestamp: evt.Timestamp,
		State:     StateConfirmed,
	}

	if sender == t.selfID {
		if i := t.placeholderLocked(evt); i >= 0 {
			t.msgs[i] = confirmed
			t.sortLocked()
			return
		}
	}

	t.msgs = append(t.msgs, confirmed)
	t.sortLocked()
}

// placeholderLocked locates the placeholder a confirmation supersedes:
// by correlation id when the server echoed one, otherwise the first
// pending entry with matching content.
func (t *Timeline) placeholderLocked(evt protocol.Event) int {
	if evt.ClientTempID != "" {
		for i, m := range t.msgs {
			if m.ID == evt.ClientTempID && m.State != StateConfirmed {
				return i
			}
		}
		return -1
	}
	for i, m := range t.msgs {
		if m.State == StatePending && m.Content == evt.Content && m.SenderID == t.selfID {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexLocked(id string) int {
	for i, m := range t.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) sortLocked() {
	// Stable keeps arrival order for equal timestamps.
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].Timestamp.Before(t.msgs[j].Timestamp)
	})
}

// Messages returns a copy of the current ordered view.
func (t *Timeline) Messages() []ClientMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ClientMessage, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// MarkFailed transitions placeholders pending longer than the timeout to
// the failed state and returns how many changed. The UI can then offer a
// retry distinct from still-pending sends.
func (t *Timeline) MarkFailed(timeout time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-timeout)
	changed := 0
	for i := range t.msgs {
		if t.msgs[i].State == StatePending && t.msgs[i].sentAt.Before(cutoff) {
			t.msgs[i].State = StateFailed
			changed++
		}
	}
	return changed
}
