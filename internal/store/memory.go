package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store implementation. It backs tests and the
// `--store memory` mode; contents are lost on process exit.
type Memory struct {
	mu       sync.RWMutex
	messages map[string]Message
	order    []string
	members  map[string]map[string]struct{}

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string]Message),
		members:  make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// Append stores m under a fresh canonical id and stamps the timestamp.
func (s *Memory) Append(_ context.Context, m Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = uuid.NewString()
	m.CreatedAt = s.now().UTC()
	s.messages[m.ID] = m
	s.order = append(s.order, m.ID)
	return m, nil
}

// Exists reports whether id was previously appended.
func (s *Memory) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.messages[id]
	return ok, nil
}

// Recent returns up to limit messages for the conversation, oldest first.
func (s *Memory) Recent(_ context.Context, channelID, dmID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Message
	for _, id := range s.order {
		m := s.messages[id]
		if m.ChannelID == channelID && m.DMID == dmID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// IsMember reports whether userID belongs to channelID.
func (s *Memory) IsMember(_ context.Context, userID, channelID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.members[channelID]
	if !ok {
		return false, nil
	}
	_, ok = set[userID]
	return ok, nil
}

// AddMember records userID as a member of channelID.
func (s *Memory) AddMember(_ context.Context, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[channelID]
	if !ok {
		set = make(map[string]struct{})
		s.members[channelID] = set
	}
	set[userID] = struct{}{}
	return nil
}
