// Package store defines the durable collaborators the hub depends on:
// message persistence with store-assigned canonical ids, and channel
// membership checks. The hub's own state is volatile; these interfaces
// are the source of truth for history and authorization.
package store

import (
	"context"
	"time"
)

// Message is a durably persisted chat message. ID and CreatedAt are
// assigned by the store on append and are authoritative once issued.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"userId"`
	ChannelID string    `json:"channelId,omitempty"`
	DMID      string    `json:"dmId,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// Messages persists chat messages and answers existence and history
// queries. Append ignores any caller-supplied ID and CreatedAt.
type Messages interface {
	// Append durably stores m and returns it with the canonical id and
	// timestamp filled in.
	Append(ctx context.Context, m Message) (Message, error)

	// Exists reports whether a message with the given canonical id has
	// been stored. Used for parent-reference validation.
	Exists(ctx context.Context, id string) (bool, error)

	// Recent returns up to limit messages for one conversation (exactly
	// one of channelID/dmID set), oldest first.
	Recent(ctx context.Context, channelID, dmID string, limit int) ([]Message, error)
}

// Memberships answers channel membership checks. Direct-message threads
// carry no membership record; the hub skips the check for them.
type Memberships interface {
	IsMember(ctx context.Context, userID, channelID string) (bool, error)
	AddMember(ctx context.Context, userID, channelID string) error
}

// Store bundles the collaborator interfaces a hub needs.
type Store interface {
	Messages
	Memberships
}
