package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"custodia/pkg/platform/sentinel"

	id "custodia/pkg/domain"
)

// InMemoryStore keeps consent records in process memory for unit tests and
// dev mode.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, clinicID id.ClinicID, recordID uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].ClinicID == clinicID && s.records[i].ID == recordID {
			return s.records[i], nil
		}
	}
	return Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByUser(_ context.Context, clinicID id.ClinicID, userID id.UserID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Record, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.ClinicID == clinicID && r.UserID == userID {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

func (s *InMemoryStore) FindLatest(_ context.Context, clinicID id.ClinicID, userID id.UserID, purpose Purpose) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Walk newest-appended-first; the last write to complete wins.
	best := -1
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.ClinicID != clinicID || r.UserID != userID || r.Purpose != purpose {
			continue
		}
		if best == -1 || r.CreatedAt.After(s.records[best].CreatedAt) {
			best = i
		}
	}
	if best == -1 {
		return Record{}, sentinel.ErrNotFound
	}
	return s.records[best], nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, clinicID id.ClinicID, recordID uuid.UUID, status Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ClinicID != clinicID || s.records[i].ID != recordID {
			continue
		}
		s.records[i].Status = status
		switch status {
		case StatusGranted:
			t := at
			s.records[i].GrantedAt = &t
		case StatusWithdrawn:
			t := at
			s.records[i].WithdrawnAt = &t
		}
		s.records[i].UpdatedAt = at
		return nil
	}
	return sentinel.ErrNotFound
}
