// Package server validates inbound client events and runs the message
// confirmation protocol: validate, persist, confirm to the sender,
// broadcast to everyone else.
package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
	"github.com/Rishab-Kumar09/ChatGenius/internal/store"
)

// storeTimeout bounds each call into the durable store so a stalled
// database cannot wedge a connection's read loop.
const storeTimeout = 5 * time.Second

// dispatch routes one decoded inbound event. It runs on the sending
// connection's read goroutine; anything shared behind it is
// mutex-guarded or funneled through the broadcast channel.
func (h *Hub) dispatch(c *Client, evt protocol.Event) {
	var err error
	switch evt.Type {
	case protocol.EventNewMessage:
		err = h.handleNewMessage(c, evt)
	case protocol.EventPresenceUpdate:
		err = h.handlePresence(c, evt)
	case protocol.EventTypingIndicator:
		err = h.handleTyping(c, evt)
	case protocol.EventMessageEdited, protocol.EventMessageDeleted:
		err = h.handleMessageChange(c, evt)
	default:
		err = fmt.Errorf("%w: unsupported client event type %q", ErrValidation, evt.Type)
	}
	if err != nil {
		h.metrics.EventsRejected.Inc()
		log.Printf("Dropping %s event from %s (user %s): %v", evt.Type, c.addr, c.userID, err)
	}
}

// handleNewMessage runs the intake state machine for one inbound
// message: Received -> Validated -> Persisted -> Confirmed, or Rejected
// on a validation or authorization failure. A persistence failure drops
// the attempt entirely; the hub never retries.
func (h *Hub) handleNewMessage(c *Client, evt protocol.Event) error {
	// Validated.
	content := strings.TrimSpace(evt.Content)
	if content == "" {
		return fmt.Errorf("%w: empty content", ErrValidation)
	}
	if evt.UserID != "" && evt.UserID != c.userID {
		return fmt.Errorf("%w: sender %q does not match connection identity %q", ErrValidation, evt.UserID, c.userID)
	}
	if _, ok := evt.Conversation(); !ok {
		return fmt.Errorf("%w: exactly one of channelId/dmId required", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(h.ctx, storeTimeout)
	defer cancel()

	if evt.ParentID != "" {
		if protocol.IsTempID(evt.ParentID) {
			return fmt.Errorf("%w: parent id %q is a placeholder id", ErrValidation, evt.ParentID)
		}
		exists, err := h.store.Exists(ctx, evt.ParentID)
		if err != nil {
			return fmt.Errorf("%w: parent lookup: %v", ErrPersistence, err)
		}
		if !exists {
			return fmt.Errorf("%w: unknown parent message %q", ErrValidation, evt.ParentID)
		}
	}

	// Authorization: channel posts require membership. DM threads carry
	// no membership record.
	if evt.ChannelID != "" {
		member, err := h.store.IsMember(ctx, c.userID, evt.ChannelID)
		if err != nil {
			return fmt.Errorf("%w: membership lookup: %v", ErrPersistence, err)
		}
		if !member {
			h.sendEvent(c, protocol.Event{
				Type:      protocol.EventError,
				Code:      "not_a_member",
				Message:   fmt.Sprintf("user %s is not a member of channel %s", c.userID, evt.ChannelID),
				ChannelID: evt.ChannelID,
				Timestamp: time.Now().UTC(),
			})
			return fmt.Errorf("%w: user %s not in channel %s", ErrAuthorization, c.userID, evt.ChannelID)
		}
	}

	// Persisted: the store assigns the canonical id and timestamp.
	msg, err := h.store.Append(ctx, store.Message{
		Content:   content,
		SenderID:  c.userID,
		ChannelID: evt.ChannelID,
		DMID:      evt.DMID,
		ParentID:  evt.ParentID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	h.metrics.MessagesPersisted.Inc()

	// Confirmed: confirmation to the sender only, carrying the
	// correlation id it supplied, then the canonical event to everyone
	// else. The originator is excluded from the broadcast because the
	// confirmation already delivered the message to it. A failed
	// confirmation send is counted and logged; the message is already
	// durable and the sender's timeline will surface the gap as a
	// still-pending placeholder.
	if !h.sendEvent(c, protocol.Event{
		Type:         protocol.EventMessageConfirmed,
		ID:           msg.ID,
		Content:      msg.Content,
		ChannelID:    msg.ChannelID,
		DMID:         msg.DMID,
		ParentID:     msg.ParentID,
		ClientTempID: evt.ClientTempID,
		Timestamp:    msg.CreatedAt,
	}) {
		h.metrics.SendFailures.Inc()
		log.Printf("Confirmation for message %s undeliverable to %s (user %s): send buffer full or connection gone", msg.ID, c.addr, c.userID)
	}

	h.Broadcast(protocol.Event{
		Type:      protocol.EventNewMessage,
		ID:        msg.ID,
		UserID:    msg.SenderID,
		Content:   msg.Content,
		ChannelID: msg.ChannelID,
		DMID:      msg.DMID,
		ParentID:  msg.ParentID,
		ReadBy:    []string{},
		Timestamp: msg.CreatedAt,
	}, c)
	return nil
}

// handlePresence overwrites the sender's presence record and rebroadcasts
// the update, lastSeen stamped, to every connection including the sender.
func (h *Hub) handlePresence(c *Client, evt protocol.Event) error {
	if !protocol.ValidStatus(evt.Status) {
		return fmt.Errorf("%w: unknown presence status %q", ErrValidation, evt.Status)
	}
	if evt.UserID != "" && evt.UserID != c.userID {
		return fmt.Errorf("%w: presence for %q announced by %q", ErrValidation, evt.UserID, c.userID)
	}

	rec := h.presence.Set(c.userID, evt.Status)
	h.Broadcast(protocol.Event{
		Type:      protocol.EventPresenceUpdate,
		UserID:    rec.UserID,
		Status:    rec.Status,
		LastSeen:  &rec.LastSeen,
		Timestamp: rec.LastSeen,
	}, nil)
	return nil
}

// handleTyping updates the typing index and rebroadcasts the indicator
// to everyone except the sender.
func (h *Hub) handleTyping(c *Client, evt protocol.Event) error {
	conversation, ok := evt.Conversation()
	if !ok {
		return fmt.Errorf("%w: typing indicator needs exactly one of channelId/dmId", ErrValidation)
	}

	h.typing.Set(c.userID, conversation, evt.Typing())
	h.Broadcast(protocol.Event{
		Type:      protocol.EventTypingIndicator,
		UserID:    c.userID,
		ChannelID: evt.ChannelID,
		DMID:      evt.DMID,
		IsTyping:  protocol.BoolPtr(evt.Typing()),
		Timestamp: time.Now().UTC(),
	}, c)
	return nil
}

// handleMessageChange fans out edit and delete notifications. The
// durable mutation itself happens through the HTTP CRUD surface; the hub
// only notifies live connections.
func (h *Hub) handleMessageChange(c *Client, evt protocol.Event) error {
	if evt.MessageID == "" {
		return fmt.Errorf("%w: messageId required", ErrValidation)
	}
	if protocol.IsTempID(evt.MessageID) {
		return fmt.Errorf("%w: cannot change unconfirmed message %q", ErrValidation, evt.MessageID)
	}
	if evt.Type == protocol.EventMessageEdited && strings.TrimSpace(evt.Content) == "" {
		return fmt.Errorf("%w: edited content empty", ErrValidation)
	}

	h.Broadcast(protocol.Event{
		Type:      evt.Type,
		MessageID: evt.MessageID,
		UserID:    c.userID,
		Content:   strings.TrimSpace(evt.Content),
		Timestamp: time.Now().UTC(),
	}, nil)
	return nil
}
