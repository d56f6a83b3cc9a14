package export

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"custodia/pkg/platform/sentinel"

	id "custodia/pkg/domain"
)

// InMemoryStore keeps export requests in process memory for unit tests and
// dev mode.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[uuid.UUID]Request)}
}

func (s *InMemoryStore) Save(_ context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, clinicID id.ClinicID, requestID uuid.UUID) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok || req.ClinicID != clinicID {
		return Request{}, sentinel.ErrNotFound
	}
	return req, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, clinicID id.ClinicID, userID id.UserID) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Request, 0)
	for _, req := range s.requests {
		if req.ClinicID == clinicID && req.UserID == userID {
			matched = append(matched, req)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

func (s *InMemoryStore) Update(_ context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.requests[req.ID]
	if !ok || existing.ClinicID != req.ClinicID {
		return sentinel.ErrNotFound
	}
	s.requests[req.ID] = req
	return nil
}
