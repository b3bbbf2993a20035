package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benjaminabbitt/medreserve/medreserve"
)

// slot owns one record and the mutex that serializes operations on it.
type slot struct {
	mu     sync.Mutex
	exists bool
	rec    Record
}

// MemoryLedger is an arena of independently locked records. The arena lock
// only guards slot lookup and creation; it is never held while a record is
// mutated.
type MemoryLedger struct {
	mu    sync.RWMutex
	slots map[Key]*slot
	now   func() time.Time
}

// NewMemoryLedger returns an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		slots: make(map[Key]*slot),
		now:   time.Now,
	}
}

func (l *MemoryLedger) lookup(key Key) *slot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slots[key]
}

func (l *MemoryLedger) lookupOrCreate(key Key) *slot {
	if s := l.lookup(key); s != nil {
		return s
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[key]; ok {
		return s
	}
	s := &slot{rec: Record{ID: key.Root(), Key: key}}
	l.slots[key] = s
	return s
}

// withRecord runs fn with the slot locked. Missing keys fail with NotFound.
func (l *MemoryLedger) withRecord(key Key, fn func(r *Record) error) (Record, error) {
	if err := key.validate(); err != nil {
		return Record{}, err
	}
	s := l.lookup(key)
	if s == nil {
		return Record{}, notFound(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return Record{}, notFound(key)
	}
	next := s.rec
	if err := fn(&next); err != nil {
		return Record{}, err
	}
	next.UpdatedAt = l.now().UTC()
	s.rec = next
	return next, nil
}

func (l *MemoryLedger) AdjustStock(ctx context.Context, key Key, delta int, adj Adjustment) (Record, error) {
	if err := key.validate(); err != nil {
		return Record{}, err
	}
	if err := validateAdjustment(key, adj); err != nil {
		return Record{}, err
	}

	s := l.lookupOrCreate(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.rec
	if !s.exists {
		next.Stock = max(delta, 0)
		next.Reserved = 0
	} else {
		next.Stock += delta
		if next.Stock < next.Reserved {
			return Record{}, medreserve.NewInvalidQuantity(key.String(), "stock cannot drop below reserved quantity")
		}
	}
	if adj.Price != nil {
		next.Price = *adj.Price
	}
	if adj.LowStockThreshold != nil {
		next.LowStockThreshold = *adj.LowStockThreshold
	}
	next.UpdatedAt = l.now().UTC()
	s.rec = next
	s.exists = true
	return next, nil
}

func (l *MemoryLedger) Reserve(ctx context.Context, key Key, qty int) (Record, error) {
	if err := medreserve.RequirePositive(qty, key.String()); err != nil {
		return Record{}, err
	}
	rec, err := l.withRecord(key, func(r *Record) error {
		if r.Available() < qty {
			return medreserve.NewInsufficientStock(key.String(), r.Available(), qty)
		}
		r.Reserved += qty
		return nil
	})
	if err != nil {
		return Record{}, missingAsEmpty(key, qty, err)
	}
	return rec, nil
}

func (l *MemoryLedger) Release(ctx context.Context, key Key, qty int) (Record, error) {
	if err := medreserve.RequirePositive(qty, key.String()); err != nil {
		return Record{}, err
	}
	return l.withRecord(key, func(r *Record) error {
		r.Reserved = max(r.Reserved-qty, 0)
		return nil
	})
}

func (l *MemoryLedger) Consume(ctx context.Context, key Key, qty int) (Record, error) {
	if err := medreserve.RequirePositive(qty, key.String()); err != nil {
		return Record{}, err
	}
	return l.withRecord(key, func(r *Record) error {
		if r.Reserved < qty {
			return medreserve.NewInvalidQuantity(key.String(), "cannot consume more than reserved")
		}
		r.Stock -= qty
		r.Reserved -= qty
		return nil
	})
}

func (l *MemoryLedger) Get(ctx context.Context, key Key) (Record, error) {
	if err := key.validate(); err != nil {
		return Record{}, err
	}
	s := l.lookup(key)
	if s == nil {
		return Record{}, notFound(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return Record{}, notFound(key)
	}
	return s.rec, nil
}

func (l *MemoryLedger) List(ctx context.Context, filter Filter) ([]Record, error) {
	l.mu.RLock()
	slots := make([]*slot, 0, len(l.slots))
	for _, s := range l.slots {
		slots = append(slots, s)
	}
	l.mu.RUnlock()

	records := make([]Record, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		rec, exists := s.rec, s.exists
		s.mu.Unlock()
		if exists && filter.matches(rec) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Key.PharmacyID != records[j].Key.PharmacyID {
			return records[i].Key.PharmacyID < records[j].Key.PharmacyID
		}
		return records[i].Key.MedicineID < records[j].Key.MedicineID
	})
	return records, nil
}
