// Package protocol defines the JSON wire events exchanged between the
// ChatGenius hub and its clients, together with small helpers for
// encoding, decoding, and validating them.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the wire event union.
type EventType string

// Wire event types. Every frame carries exactly one of these in its
// "type" field.
const (
	EventNewMessage            EventType = "new_message"
	EventMessageConfirmed      EventType = "message_confirmed"
	EventMessageEdited         EventType = "message_edited"
	EventMessageDeleted        EventType = "message_deleted"
	EventPresenceUpdate        EventType = "presence_update"
	EventTypingIndicator       EventType = "typing_indicator"
	EventConnectionEstablished EventType = "connection_established"
	EventPresenceState         EventType = "presence_state"
	EventError                 EventType = "error"
)

// Status enumerates the presence states a user may announce.
type Status string

const (
	StatusOnline  Status = "online"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// ValidStatus reports whether s is one of the recognized presence states.
func ValidStatus(s Status) bool {
	return s == StatusOnline || s == StatusBusy || s == StatusOffline
}

// TempIDPrefix tags client-generated placeholder ids so they can never be
// mistaken for store-assigned canonical ids.
const TempIDPrefix = "tmp-"

// NewTempID returns a fresh placeholder id carrying the reserved prefix.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a client-generated placeholder id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// PresenceEntry is one user's last-known presence, as replayed to a newly
// accepted connection in a presence_state frame.
type PresenceEntry struct {
	UserID   string     `json:"userId"`
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"lastSeen"`
}

// Event is the tagged union carried on the wire. Only the fields relevant
// to the Type are populated; the rest stay at their zero values and are
// omitted from the encoded JSON.
type Event struct {
	Type EventType `json:"type"`

	// Message fields.
	ID           string   `json:"id,omitempty"`
	MessageID    string   `json:"messageId,omitempty"`
	UserID       string   `json:"userId,omitempty"`
	Content      string   `json:"content,omitempty"`
	ChannelID    string   `json:"channelId,omitempty"`
	DMID         string   `json:"dmId,omitempty"`
	ParentID     string   `json:"parentId,omitempty"`
	ClientTempID string   `json:"clientTempId,omitempty"`
	ReadBy       []string `json:"readBy,omitzero"`

	// Presence fields.
	Status   Status          `json:"status,omitempty"`
	LastSeen *time.Time      `json:"lastSeen,omitempty"`
	Presence []PresenceEntry `json:"presence,omitempty"`

	// Typing fields.
	IsTyping *bool `json:"isTyping,omitempty"`

	// Error reply fields.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Encode serializes the event to its wire form.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses a wire frame into an Event. It only guarantees the frame
// is well-formed JSON with a non-empty type; per-type field validation is
// the hub's job.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type field")
	}
	return e, nil
}

// Conversation returns the conversation key for the event: the channel id
// for channel messages or "dm:"-prefixed for direct-message threads. The
// second return is false when neither or both references are set.
func (e Event) Conversation() (string, bool) {
	switch {
	case e.ChannelID != "" && e.DMID != "":
		return "", false
	case e.ChannelID != "":
		return e.ChannelID, true
	case e.DMID != "":
		return "dm:" + e.DMID, true
	default:
		return "", false
	}
}

// Typing reports the isTyping flag, treating an absent field as false.
func (e Event) Typing() bool {
	return e.IsTyping != nil && *e.IsTyping
}

// BoolPtr is a convenience for populating the IsTyping field.
func BoolPtr(b bool) *bool {
	return &b
}
