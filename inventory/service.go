// Package inventory exposes the ledger to pharmacy staff and to availability
// search.
package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/benjaminabbitt/medreserve/events"
	"github.com/benjaminabbitt/medreserve/ledger"
	"github.com/benjaminabbitt/medreserve/medreserve"
)

type Service struct {
	ledger    ledger.Ledger
	now       func() time.Time
	logger    *zap.Logger
	publisher events.Publisher
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(l ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:    l,
		now:       time.Now,
		logger:    zap.NewNop(),
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Adjust changes stock and optionally price or threshold of a record. Only
// staff of the pharmacy or an admin may adjust.
func (s *Service) Adjust(ctx context.Context, actor medreserve.Actor, key ledger.Key, delta int, adj ledger.Adjustment) (ledger.Record, error) {
	if err := medreserve.RequireStaffOf(actor, key.PharmacyID); err != nil {
		return ledger.Record{}, err
	}
	rec, err := s.ledger.AdjustStock(ctx, key, delta, adj)
	if err != nil {
		return ledger.Record{}, err
	}

	s.logger.Info("inventory adjusted",
		zap.String("key", key.String()),
		zap.Int("delta", delta),
		zap.Int("stock", rec.Stock),
		zap.Int("reserved", rec.Reserved),
		zap.String("actor_id", actor.ID),
	)
	now := s.now().UTC()
	events.Emit(ctx, s.publisher, s.logger, events.New(events.InventoryAdjusted, key.String(), now, map[string]any{
		"pharmacy_id": key.PharmacyID,
		"medicine_id": key.MedicineID,
		"delta":       delta,
		"stock":       rec.Stock,
		"reserved":    rec.Reserved,
		"price":       rec.Price.String(),
	}))
	if delta < 0 && ledger.CrossedLowStock(rec, -delta) {
		events.Emit(ctx, s.publisher, s.logger, events.New(events.LowStockAlert, key.String(), now, map[string]any{
			"pharmacy_id": key.PharmacyID,
			"medicine_id": key.MedicineID,
			"available":   rec.Available(),
			"threshold":   rec.LowStockThreshold,
		}))
	}
	return rec, nil
}

// List returns inventory records matching filter.
func (s *Service) List(ctx context.Context, filter ledger.Filter) ([]ledger.Record, error) {
	return s.ledger.List(ctx, filter)
}

// Search lists the pharmacies that can currently supply medicineID.
func (s *Service) Search(ctx context.Context, medicineID string) ([]ledger.Record, error) {
	if err := medreserve.RequireNonEmpty(medicineID, "medicine_id"); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, ledger.Filter{MedicineID: medicineID, OnlyAvailable: true})
}
