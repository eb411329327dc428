// Package server coordinates connection admission, event fan-out, and
// eviction cleanup for the ChatGenius hub via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
	"github.com/Rishab-Kumar09/ChatGenius/internal/store"
)

// outbound is one serialized event queued for fan-out, with an optional
// connection to exclude (usually the originator).
type outbound struct {
	payload []byte
	exclude *Client
}

// Hub owns the connection registry, presence store, and typing index,
// and runs the broadcast loop that fans events out to every live
// connection. All registration, eviction, and delivery runs on the
// single Run goroutine; intake goroutines only enqueue.
type Hub struct {
	cfg      Config
	registry *Registry
	presence *PresenceStore
	typing   *TypingIndex
	store    store.Store
	metrics  *Metrics

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub bound to the given durable store. The returned
// hub is inert until Run is started.
func NewHub(cfg Config, st store.Store, metrics *Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		registry:   NewRegistry(),
		presence:   NewPresenceStore(),
		typing:     NewTypingIndex(),
		store:      st,
		metrics:    metrics,
		broadcast:  make(chan outbound),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry exposes the connection registry, mainly for tests.
func (h *Hub) Registry() *Registry { return h.registry }

// Presence exposes the presence store.
func (h *Hub) Presence() *PresenceStore { return h.presence }

// Typing exposes the typing index.
func (h *Hub) Typing() *TypingIndex { return h.typing }

// Register hands a connection to the hub for admission. The hub replays
// current presence state to it and starts its pumps.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
	}
}

// Unregister asks the hub to evict a connection. Safe to call more than
// once; a second eviction is a no-op.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Broadcast serializes the event once and queues it for delivery to
// every live connection except exclude. Pass a nil exclude to reach
// everyone, including the originator.
func (h *Hub) Broadcast(evt protocol.Event, exclude *Client) {
	payload, err := evt.Encode()
	if err != nil {
		log.Printf("Dropping undeliverable %s event: %v", evt.Type, err)
		return
	}
	select {
	case h.broadcast <- outbound{payload: payload, exclude: exclude}:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop. Call it in its own goroutine;
// it returns only when Shutdown cancels the hub.
func (h *Hub) Run() {
	defer close(h.done)

	var sweep <-chan time.Time
	if h.cfg.TypingSweepInterval > 0 {
		ticker := time.NewTicker(h.cfg.TypingSweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.admit(client)

		case client := <-h.unregister:
			h.evict(client)

		case out := <-h.broadcast:
			h.deliver(out)

		case <-sweep:
			if removed := h.typing.Sweep(h.cfg.TypingSweepTTL); removed > 0 {
				log.Printf("Typing sweep removed %d stale entries", removed)
			}
		}
	}
}

// admit records the connection, replays presence state to it only, and
// starts its read and write pumps.
func (h *Hub) admit(c *Client) {
	h.registry.Admit(c, c.userID)
	h.metrics.ConnectedClients.Set(float64(h.registry.Len()))
	log.Printf("Client %s admitted as user %s. Total clients: %d", c.addr, c.userID, h.registry.Len())

	now := time.Now().UTC()
	h.sendEvent(c, protocol.Event{Type: protocol.EventConnectionEstablished, Timestamp: now})
	h.sendEvent(c, protocol.Event{
		Type:      protocol.EventPresenceState,
		Presence:  h.presence.Snapshot(),
		Timestamp: now,
	})

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// sendEvent serializes and queues an event for a single connection.
func (h *Hub) sendEvent(c *Client, evt protocol.Event) bool {
	payload, err := evt.Encode()
	if err != nil {
		log.Printf("Dropping undeliverable %s event for %s: %v", evt.Type, c.addr, err)
		return false
	}
	return h.registry.TrySend(c, payload)
}

// deliver fans one serialized event out to every live connection except
// the excluded one. A failed send never aborts delivery to the rest; the
// failing connection is evicted afterwards.
func (h *Hub) deliver(out outbound) {
	targets := h.registry.Targets()

	var failed []*Client
	for _, c := range targets {
		if out.exclude != nil && c == out.exclude {
			continue
		}
		if !h.registry.TrySend(c, out.payload) {
			h.metrics.SendFailures.Inc()
			failed = append(failed, c)
		}
	}
	h.metrics.EventsBroadcast.Inc()

	for _, c := range failed {
		h.evict(c)
	}
}

// evict removes the connection from the registry and, when it was the
// user's last live connection, marks the user offline and broadcasts the
// change to everyone else. Eviction is idempotent: a connection already
// gone produces no second offline broadcast. The offline fan-out
// excludes the connection being evicted, so eviction never re-enters
// itself for the same connection.
func (h *Hub) evict(c *Client) {
	userID, evicted, last := h.registry.Evict(c)
	if !evicted {
		return
	}
	close(c.send)
	h.metrics.Evictions.Inc()
	h.metrics.ConnectedClients.Set(float64(h.registry.Len()))
	log.Printf("Client %s (user %s) evicted. Total clients: %d", c.addr, userID, h.registry.Len())

	if !last {
		return
	}
	rec := h.presence.Set(userID, protocol.StatusOffline)
	evt := protocol.Event{
		Type:      protocol.EventPresenceUpdate,
		UserID:    userID,
		Status:    protocol.StatusOffline,
		LastSeen:  &rec.LastSeen,
		Timestamp: rec.LastSeen,
	}
	payload, err := evt.Encode()
	if err != nil {
		log.Printf("Dropping offline broadcast for user %s: %v", userID, err)
		return
	}
	h.deliver(outbound{payload: payload, exclude: c})
}

// shutdownClients evicts every live connection during hub shutdown.
// Closing the send channel releases the writePump immediately instead of
// leaving it parked until the next ping tick; closing the transport
// releases the readPump. No offline broadcasts: everyone is going away.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.registry.Targets()
	for _, c := range clients {
		if _, evicted, _ := h.registry.Evict(c); evicted {
			close(c.send)
		}
		if c.conn == nil {
			continue
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing client connection from %s: %v", c.addr, err)
		}
	}
	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown cancels the hub, waits for the Run loop to drain, and then
// waits for client goroutines up to the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
