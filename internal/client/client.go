// Package client: connection management. A single goroutine owns the
// read loop; reconnect attempts are serialized inside it and never
// overlap.
package client

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rishab-Kumar09/ChatGenius/internal/backoff"
	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
)

// State is the connection lifecycle surfaced to the UI layer.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateDisconnected is terminal: the retry budget is spent and the
	// client will not reconnect without user action.
	StateDisconnected State = "disconnected"
)

// ErrNotConnected is returned for sends attempted without a live
// connection.
var ErrNotConnected = errors.New("client: not connected")

// Options configures a Client.
type Options struct {
	// URL is the hub's WebSocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// UserID is the local user's id, used for the reconciliation
	// timeline and insecure development handshakes.
	UserID string
	// Token authenticates the handshake when the server runs with a
	// signing secret.
	Token string

	// OnEvent, when set, receives every decoded server event after it
	// has been merged into the timeline.
	OnEvent func(protocol.Event)
	// OnState, when set, receives connection state transitions.
	OnState func(State)

	// Backoff overrides the reconnect schedule. Zero value selects the
	// standard 1s-doubling-capped-10s, five-attempt policy.
	Backoff backoff.Policy

	Dialer *websocket.Dialer
}

// Client is a hub connection with optimistic send reconciliation.
type Client struct {
	opts     Options
	timeline *Timeline
	policy   backoff.Policy
	dialer   *websocket.Dialer

	// sleep is swappable so tests can observe the backoff schedule
	// without waiting it out.
	sleep func(time.Duration)

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	done      chan struct{}
	closeOnce sync.Once
}

// New validates the options and builds a client. Connect starts it.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("client: URL required")
	}
	if opts.UserID == "" {
		return nil, errors.New("client: UserID required")
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("client: parse URL: %w", err)
	}

	policy := opts.Backoff
	if policy == (backoff.Policy{}) {
		policy = backoff.Reconnect()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Client{
		opts:     opts,
		timeline: NewTimeline(opts.UserID),
		policy:   policy,
		dialer:   dialer,
		sleep:    time.Sleep,
		state:    StateConnecting,
		done:     make(chan struct{}),
	}, nil
}

// Timeline returns the client's reconciliation timeline.
func (c *Client) Timeline() *Timeline { return c.timeline }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if c.opts.Token != "" {
		q.Set("token", c.opts.Token)
	} else {
		q.Set("user", c.opts.UserID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the hub and starts the read loop. It returns an error
// if the very first dial fails; reconnection only covers established
// sessions that drop.
func (c *Client) Connect() error {
	endpoint, err := c.endpoint()
	if err != nil {
		return fmt.Errorf("client: build endpoint: %w", err)
	}

	conn, _, err := c.dialer.Dial(endpoint, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("client: dial %s: %w", c.opts.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)

	go c.readLoop()
	return nil
}

// Close tears the connection down permanently.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readLoop consumes server events until the connection drops, then runs
// the reconnect schedule. It is the only goroutine that ever dials, so
// reconnect attempts cannot overlap.
func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		for conn != nil {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if !c.closed() {
					log.Printf("Connection lost: %v", err)
				}
				break
			}
			evt, err := protocol.Decode(raw)
			if err != nil {
				log.Printf("Discarding malformed server frame: %v", err)
				continue
			}
			c.timeline.Apply(evt)
			if c.opts.OnEvent != nil {
				c.opts.OnEvent(evt)
			}
		}

		if c.closed() {
			return
		}
		if !c.reconnect() {
			c.setState(StateDisconnected)
			return
		}
	}
}

// reconnect walks the backoff schedule until a dial succeeds or the
// attempt budget is spent. It reports whether a new session is live.
func (c *Client) reconnect() bool {
	c.setState(StateReconnecting)

	endpoint, err := c.endpoint()
	if err != nil {
		log.Printf("Cannot rebuild endpoint: %v", err)
		return false
	}

	for attempt := 1; ; attempt++ {
		if c.policy.Exhausted(attempt) {
			log.Printf("Giving up after %d reconnect attempts", attempt-1)
			return false
		}
		c.sleep(c.policy.Delay(attempt))
		if c.closed() {
			return false
		}

		conn, _, err := c.dialer.Dial(endpoint, nil)
		if err != nil {
			log.Printf("Reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		return true
	}
}

// write sends one event frame. Writes serialize on the client mutex
// because the transport allows a single concurrent writer.
func (c *Client) write(evt protocol.Event) error {
	payload, err := evt.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.state != StateConnected {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// SendMessage appends an optimistic placeholder to the timeline and
// sends the message with the placeholder id as its correlation id. The
// placeholder is returned even when the write fails; it stays pending
// until confirmed or marked failed.
func (c *Client) SendMessage(content, channelID, dmID, parentID string) (ClientMessage, error) {
	placeholder := c.timeline.AppendLocal(content, channelID, dmID, parentID)

	err := c.write(protocol.Event{
		Type:         protocol.EventNewMessage,
		UserID:       c.opts.UserID,
		Content:      content,
		ChannelID:    channelID,
		DMID:         dmID,
		ParentID:     parentID,
		ClientTempID: placeholder.ID,
		Timestamp:    placeholder.Timestamp,
	})
	return placeholder, err
}

// SetStatus announces the local user's presence. Fire-and-forget: the
// call blocks only on the transport write.
func (c *Client) SetStatus(status protocol.Status) error {
	return c.write(protocol.Event{
		Type:      protocol.EventPresenceUpdate,
		UserID:    c.opts.UserID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}

// SetTyping announces a typing edge for one conversation. The caller is
// responsible for sending the false edge after its inactivity window
// (2s of no keystrokes in the reference UI).
func (c *Client) SetTyping(channelID, dmID string, isTyping bool) error {
	return c.write(protocol.Event{
		Type:      protocol.EventTypingIndicator,
		UserID:    c.opts.UserID,
		ChannelID: channelID,
		DMID:      dmID,
		IsTyping:  protocol.BoolPtr(isTyping),
		Timestamp: time.Now().UTC(),
	})
}

// EditMessage broadcasts an edit for a confirmed message.
func (c *Client) EditMessage(messageID, content string) error {
	return c.write(protocol.Event{
		Type:      protocol.EventMessageEdited,
		MessageID: messageID,
		UserID:    c.opts.UserID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// DeleteMessage broadcasts a delete for a confirmed message.
func (c *Client) DeleteMessage(messageID string) error {
	return c.write(protocol.Event{
		Type:      protocol.EventMessageDeleted,
		MessageID: messageID,
		UserID:    c.opts.UserID,
		Timestamp: time.Now().UTC(),
	})
}
