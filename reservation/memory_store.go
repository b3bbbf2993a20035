package reservation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benjaminabbitt/medreserve/reservation/logic"
)

// MemoryStore keeps reservations in process.
type MemoryStore struct {
	mu           sync.RWMutex
	reservations map[string]logic.Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reservations: make(map[string]logic.Reservation)}
}

func clone(r logic.Reservation) logic.Reservation {
	r.Items = append([]logic.LineItem(nil), r.Items...)
	return r
}

func (s *MemoryStore) Insert(_ context.Context, r logic.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reservations[r.ID]; exists {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	s.reservations[r.ID] = clone(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (logic.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return logic.Reservation{}, notFound(id)
	}
	return clone(r), nil
}

func (s *MemoryStore) CompareAndSetStatus(_ context.Context, id string, from, to logic.Status, at time.Time) (logic.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return logic.Reservation{}, false, notFound(id)
	}
	if r.Status != from {
		return clone(r), false, nil
	}
	r.Status = to
	r.UpdatedAt = at
	s.reservations[id] = r
	return clone(r), true, nil
}

func (s *MemoryStore) ListByCustomer(_ context.Context, customerID string) ([]logic.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []logic.Reservation
	for _, r := range s.reservations {
		if r.CustomerID == customerID {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time, limit int) ([]logic.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []logic.Reservation
	for _, r := range s.reservations {
		if r.Status == logic.StatusPending && r.HoldExpired(now) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
