package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/benjaminabbitt/medreserve/ledger"
	"github.com/benjaminabbitt/medreserve/reservation/logic"
)

// ctxLedger refuses writes once the context is done, as the Postgres ledger
// does. beforeReserve runs ahead of every reserve.
type ctxLedger struct {
	ledger.Ledger
	beforeReserve func(key ledger.Key)
}

func (l *ctxLedger) Reserve(ctx context.Context, key ledger.Key, qty int) (ledger.Record, error) {
	if l.beforeReserve != nil {
		l.beforeReserve(key)
	}
	if err := ctx.Err(); err != nil {
		return ledger.Record{}, err
	}
	return l.Ledger.Reserve(ctx, key, qty)
}

func (l *ctxLedger) Release(ctx context.Context, key ledger.Key, qty int) (ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Record{}, err
	}
	return l.Ledger.Release(ctx, key, qty)
}

func (l *ctxLedger) Consume(ctx context.Context, key ledger.Key, qty int) (ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Record{}, err
	}
	return l.Ledger.Consume(ctx, key, qty)
}

// hookStore runs afterSwap once a status change committed.
type hookStore struct {
	*MemoryStore
	afterSwap func()
}

func (s *hookStore) CompareAndSetStatus(ctx context.Context, id string, from, to logic.Status, at time.Time) (logic.Reservation, bool, error) {
	r, ok, err := s.MemoryStore.CompareAndSetStatus(ctx, id, from, to, at)
	if ok && s.afterSwap != nil {
		s.afterSwap()
	}
	return r, ok, err
}

func (s *ManagerSuite) TestCreate_CallerCancelledMidwayStillRollsBack() {
	s.stock("A", 10, "1")
	s.stock("B", 10, "1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := &ctxLedger{Ledger: s.ledger, beforeReserve: func(key ledger.Key) {
		if key.MedicineID == "B" {
			cancel()
		}
	}}
	m := NewManager(l, s.store, WithClock(s.clock.Now))

	_, err := m.Create(ctx, customerA, "P", []logic.ItemRequest{
		{MedicineID: "A", Qty: 3},
		{MedicineID: "B", Qty: 2},
	})

	s.Require().Error(err)
	s.True(errors.Is(err, context.Canceled))
	s.Equal(0, s.record("A").Reserved)
	s.Equal(0, s.record("B").Reserved)
}

func (s *ManagerSuite) TestConfirm_CallerCancelledAfterCommitStillConsumes() {
	s.stock("M", 10, "1")
	r := s.reserve(customerA, logic.ItemRequest{MedicineID: "M", Qty: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(&ctxLedger{Ledger: s.ledger}, &hookStore{MemoryStore: s.store, afterSwap: cancel}, WithClock(s.clock.Now))

	confirmed, err := m.Confirm(ctx, customerA, r.ID)

	s.Require().NoError(err)
	s.Equal(logic.StatusConfirmed, confirmed.Status)
	rec := s.record("M")
	s.Equal(6, rec.Stock)
	s.Equal(0, rec.Reserved)
}

func (s *ManagerSuite) TestCancel_CallerCancelledAfterCommitStillReleases() {
	s.stock("M", 10, "1")
	r := s.reserve(customerA, logic.ItemRequest{MedicineID: "M", Qty: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(&ctxLedger{Ledger: s.ledger}, &hookStore{MemoryStore: s.store, afterSwap: cancel}, WithClock(s.clock.Now))

	cancelled, err := m.Cancel(ctx, customerA, r.ID)

	s.Require().NoError(err)
	s.Equal(logic.StatusCancelled, cancelled.Status)
	rec := s.record("M")
	s.Equal(10, rec.Stock)
	s.Equal(0, rec.Reserved)
}
