package prescription

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/benjaminabbitt/medreserve/ledger"
	"github.com/benjaminabbitt/medreserve/prescription/logic"
	"github.com/benjaminabbitt/medreserve/reservation"
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

// ctxStore refuses swaps once the context is done.
type ctxStore struct {
	*MemoryStore
}

func (s ctxStore) CompareAndSwap(ctx context.Context, from logic.Status, next logic.Prescription) (logic.Prescription, bool, error) {
	if err := ctx.Err(); err != nil {
		return logic.Prescription{}, false, err
	}
	return s.MemoryStore.CompareAndSwap(ctx, from, next)
}

func (s *ManagerSuite) TestConfirm_CallerCancelledMidwayRestoresQuote() {
	s.stock("A", 10)
	s.stock("B", 10)
	p := s.approved(logic.QuoteDraft{Items: []logic.QuoteItem{
		{MedicineID: "A", Qty: 3, Price: decimal.NewFromInt(10)},
		{MedicineID: "B", Qty: 2, Price: decimal.NewFromInt(20)},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := &ctxLedger{Ledger: s.ledger, beforeReserve: func(key ledger.Key) {
		if key.MedicineID == "B" {
			cancel()
		}
	}}
	reservations := reservation.NewManager(l, reservation.NewMemoryStore(), reservation.WithClock(s.clock))
	m := NewManager(ctxStore{s.store}, s.files, reservations, WithClock(s.clock))

	_, _, err := m.ConfirmToReservation(ctx, customerA, p.ID)

	s.Require().Error(err)
	s.True(errors.Is(err, context.Canceled))
	stored, err := s.store.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(logic.StatusApprovedWithQuote, stored.Status)
	s.Equal(0, s.reserved("A"))
	s.Equal(0, s.reserved("B"))

	_, r, err := s.manager.ConfirmToReservation(s.ctx, customerA, p.ID)
	s.Require().NoError(err)
	s.Len(r.Items, 2)
}
