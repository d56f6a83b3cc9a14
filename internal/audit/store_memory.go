package audit

import (
	"context"
	"sort"
	"sync"

	id "custodia/pkg/domain"
)

// InMemoryStore keeps entries in process memory. Used by unit tests and dev
// mode; the Postgres store is the durable implementation.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByResource(_ context.Context, clinicID id.ClinicID, resourceType ResourceType, resourceID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, func(e Entry) bool {
		return e.ClinicID == clinicID && e.ResourceType == resourceType && e.ResourceID == resourceID
	}), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, clinicID id.ClinicID, userID id.UserID, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, func(e Entry) bool {
		return e.ClinicID == clinicID && e.ActorID == userID
	}), nil
}

func (s *InMemoryStore) ListByAction(_ context.Context, clinicID id.ClinicID, action Action, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, func(e Entry) bool {
		return e.ClinicID == clinicID && e.Action == action
	}), nil
}

// collect walks entries newest-appended-first so entries sharing a timestamp
// keep insertion order, then stable-sorts on CreatedAt descending.
func (s *InMemoryStore) collect(limit int, match func(Entry) bool) []Entry {
	matched := make([]Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if match(s.entries[i]) {
			matched = append(matched, s.entries[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
