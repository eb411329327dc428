// Package server indexes which users are currently typing per
// conversation. Expiry is client-driven: clients send isTyping=false
// after their own inactivity window, so an unclean disconnect can leave
// a stale entry until the user types again. An optional server-side
// sweep covers that gap.
package server

import (
	"sort"
	"sync"
	"time"
)

// TypingIndex maps a conversation key to the set of user ids typing in
// it, with the time each entry was last refreshed.
type TypingIndex struct {
	mu      sync.RWMutex
	typists map[string]map[string]time.Time

	now func() time.Time
}

// NewTypingIndex returns an empty typing index.
func NewTypingIndex() *TypingIndex {
	return &TypingIndex{
		typists: make(map[string]map[string]time.Time),
		now:     time.Now,
	}
}

// Set adds or removes userID from the conversation's typing set.
func (t *TypingIndex) Set(userID, conversation string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typists[conversation]
	if !isTyping {
		if ok {
			delete(set, userID)
			if len(set) == 0 {
				delete(t.typists, conversation)
			}
		}
		return
	}
	if !ok {
		set = make(map[string]time.Time)
		t.typists[conversation] = set
	}
	set[userID] = t.now()
}

// Typists returns the user ids currently typing in the conversation,
// sorted for stable output.
func (t *TypingIndex) Typists(conversation string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.typists[conversation]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Sweep drops entries older than ttl and returns how many were removed.
// Used by the optional server-side sweep; correctness of the protocol
// does not depend on it.
func (t *TypingIndex) Sweep(ttl time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-ttl)
	removed := 0
	for conversation, set := range t.typists {
		for id, at := range set {
			if at.Before(cutoff) {
				delete(set, id)
				removed++
			}
		}
		if len(set) == 0 {
			delete(t.typists, conversation)
		}
	}
	return removed
}
