package prescription

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/benjaminabbitt/medreserve/prescription/logic"
)

// MemoryStore keeps prescriptions in process.
type MemoryStore struct {
	mu            sync.RWMutex
	prescriptions map[string]logic.Prescription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prescriptions: make(map[string]logic.Prescription)}
}

func clone(p logic.Prescription) logic.Prescription {
	p.Files = append([]logic.FileRef(nil), p.Files...)
	if p.Quote != nil {
		q := *p.Quote
		q.Items = append([]logic.QuoteItem(nil), q.Items...)
		p.Quote = &q
	}
	if p.Verification != nil {
		v := *p.Verification
		p.Verification = &v
	}
	return p
}

func (s *MemoryStore) Insert(_ context.Context, p logic.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.prescriptions[p.ID]; exists {
		return fmt.Errorf("prescription %s already exists", p.ID)
	}
	s.prescriptions[p.ID] = clone(p)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (logic.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prescriptions[id]
	if !ok {
		return logic.Prescription{}, notFound(id)
	}
	return clone(p), nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, from logic.Status, next logic.Prescription) (logic.Prescription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.prescriptions[next.ID]
	if !ok {
		return logic.Prescription{}, false, notFound(next.ID)
	}
	if current.Status != from {
		return clone(current), false, nil
	}
	updated := clone(next)
	updated.CustomerID = current.CustomerID
	updated.PharmacyID = current.PharmacyID
	updated.Files = current.Files
	updated.Note = current.Note
	updated.CreatedAt = current.CreatedAt
	s.prescriptions[next.ID] = updated
	return clone(updated), true, nil
}

func (s *MemoryStore) list(match func(logic.Prescription) bool) []logic.Prescription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []logic.Prescription
	for _, p := range s.prescriptions {
		if match(p) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) ListByCustomer(_ context.Context, customerID string) ([]logic.Prescription, error) {
	return s.list(func(p logic.Prescription) bool { return p.CustomerID == customerID }), nil
}

func (s *MemoryStore) ListByPharmacy(_ context.Context, pharmacyID string, status logic.Status) ([]logic.Prescription, error) {
	return s.list(func(p logic.Prescription) bool {
		return p.PharmacyID == pharmacyID && (status == "" || p.Status == status)
	}), nil
}
