// Package server tracks last-known presence per user. The store is
// volatile and rebuilt from client announcements after a restart.
package server

import (
	"sort"
	"sync"
	"time"

	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
)

// PresenceRecord is the last-known status of one user.
type PresenceRecord struct {
	UserID   string
	Status   protocol.Status
	LastSeen time.Time
}

// PresenceStore holds one record per user id, overwritten on every
// presence event. Records are never deleted; stale users simply read as
// offline with an old LastSeen.
type PresenceStore struct {
	mu      sync.RWMutex
	records map[string]PresenceRecord

	now func() time.Time
}

// NewPresenceStore returns an empty presence store.
func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		records: make(map[string]PresenceRecord),
		now:     time.Now,
	}
}

// Set overwrites the user's record with the given status, stamping
// LastSeen on every update, and returns the stored record.
func (p *PresenceStore) Set(userID string, status protocol.Status) PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := PresenceRecord{UserID: userID, Status: status, LastSeen: p.now().UTC()}
	p.records[userID] = rec
	return rec
}

// Get returns the user's record. Unknown users read as offline with no
// last-seen time; the second return distinguishes the synthesized
// default.
func (p *PresenceStore) Get(userID string) (PresenceRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[userID]
	if !ok {
		return PresenceRecord{UserID: userID, Status: protocol.StatusOffline}, false
	}
	return rec, true
}

// Snapshot returns every known record as wire presence entries, ordered
// by user id. Replayed to each newly admitted connection.
func (p *PresenceStore) Snapshot() []protocol.PresenceEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]protocol.PresenceEntry, 0, len(p.records))
	for _, rec := range p.records {
		seen := rec.LastSeen
		out = append(out, protocol.PresenceEntry{
			UserID:   rec.UserID,
			Status:   rec.Status,
			LastSeen: &seen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
