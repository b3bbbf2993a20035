// Package reservation creates stock holds against the ledger and moves them
// through confirm, cancel, expire and pickup.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/benjaminabbitt/medreserve/events"
	"github.com/benjaminabbitt/medreserve/ledger"
	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/reservation/logic"
)

// Reservation is the persisted hold.
type Reservation = logic.Reservation

// DefaultHoldDuration is how long a pending reservation keeps its stock.
const DefaultHoldDuration = 30 * time.Minute

// Manager owns the reservation lifecycle.
type Manager struct {
	ledger    ledger.Ledger
	store     Store
	hold      time.Duration
	now       func() time.Time
	logger    *zap.Logger
	publisher events.Publisher
}

// Option configures a Manager.
type Option func(*Manager)

// WithHoldDuration sets how long new reservations hold stock.
func WithHoldDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.hold = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func NewManager(l ledger.Ledger, store Store, opts ...Option) *Manager {
	m := &Manager{
		ledger:    l,
		store:     store,
		hold:      DefaultHoldDuration,
		now:       time.Now,
		logger:    zap.NewNop(),
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HoldDuration reports the configured hold.
func (m *Manager) HoldDuration() time.Duration {
	return m.hold
}

// plannedLine is one ledger reservation to make. A nil price means the
// ledger's current price is snapshotted.
type plannedLine struct {
	medicineID string
	name       string
	qty        int
	price      *decimal.Decimal
}

// Create reserves every item at pharmacyID for the calling customer. Either
// all items are reserved or none are.
func (m *Manager) Create(ctx context.Context, actor medreserve.Actor, pharmacyID string, items []logic.ItemRequest) (Reservation, error) {
	if err := medreserve.RequireActor(actor); err != nil {
		return Reservation{}, err
	}
	if !actor.IsCustomer() && !actor.IsAdmin() {
		return Reservation{}, medreserve.NewForbidden("actor:"+actor.ID, logic.ErrMsgCustomerOnly)
	}
	if err := medreserve.RequireNonEmpty(pharmacyID, "pharmacy_id"); err != nil {
		return Reservation{}, err
	}
	merged, err := logic.MergeItems(items)
	if err != nil {
		return Reservation{}, err
	}

	lines := make([]plannedLine, len(merged))
	for i, req := range merged {
		lines[i] = plannedLine{medicineID: req.MedicineID, qty: req.Qty}
	}
	return m.create(ctx, actor.ID, pharmacyID, "", lines)
}

// QuoteOrder is a priced item list handed over by the prescription lifecycle.
type QuoteOrder struct {
	CustomerID     string
	PharmacyID     string
	PrescriptionID string
	Items          []logic.LineItem
}

// CreateFromQuote reserves a quoted item list. Quoted prices are kept as the
// reservation prices and the reservation records the prescription as its
// provenance.
func (m *Manager) CreateFromQuote(ctx context.Context, order QuoteOrder) (Reservation, error) {
	if err := medreserve.RequireNonEmpty(order.CustomerID, "customer_id"); err != nil {
		return Reservation{}, err
	}
	if err := medreserve.RequireNonEmpty(order.PharmacyID, "pharmacy_id"); err != nil {
		return Reservation{}, err
	}
	if err := medreserve.RequireNotEmpty(order.Items, logic.ErrMsgItemsRequired); err != nil {
		return Reservation{}, err
	}

	lines := make([]plannedLine, 0, len(order.Items))
	for _, item := range order.Items {
		if err := medreserve.RequirePositive(item.Qty, "medicine:"+item.MedicineID); err != nil {
			return Reservation{}, err
		}
		price := item.PriceAtReserve
		lines = append(lines, plannedLine{medicineID: item.MedicineID, name: item.Name, qty: item.Qty, price: &price})
	}
	return m.create(ctx, order.CustomerID, order.PharmacyID, order.PrescriptionID, lines)
}

func (m *Manager) create(ctx context.Context, customerID, pharmacyID, prescriptionID string, lines []plannedLine) (Reservation, error) {
	var (
		reserved []ledger.Key
		items    = make([]logic.LineItem, 0, len(lines))
		lowStock []ledger.Record
	)
	rollback := func(cause error) error {
		return m.releaseKeys(ctx, reserved, lines, cause)
	}

	for _, line := range lines {
		key := ledger.Key{PharmacyID: pharmacyID, MedicineID: line.medicineID}
		rec, err := m.ledger.Reserve(ctx, key, line.qty)
		if err != nil {
			return Reservation{}, rollback(err)
		}
		reserved = append(reserved, key)

		price := rec.Price
		if line.price != nil {
			price = *line.price
		}
		items = append(items, logic.LineItem{
			MedicineID:     line.medicineID,
			Name:           line.name,
			Qty:            line.qty,
			PriceAtReserve: price,
		})
		if ledger.CrossedLowStock(rec, line.qty) {
			lowStock = append(lowStock, rec)
		}
	}

	now := m.now().UTC()
	r := Reservation{
		ID:             medreserve.NewID(),
		CustomerID:     customerID,
		PharmacyID:     pharmacyID,
		Items:          items,
		Status:         logic.StatusPending,
		ExpiresAt:      now.Add(m.hold),
		PrescriptionID: prescriptionID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Insert(ctx, r); err != nil {
		return Reservation{}, rollback(fmt.Errorf("persist reservation: %w", err))
	}

	m.logger.Info("reservation created",
		zap.String("reservation_id", r.ID),
		zap.String("customer_id", customerID),
		zap.String("pharmacy_id", pharmacyID),
		zap.Int("items", len(items)),
		zap.Time("expires_at", r.ExpiresAt),
	)
	m.emit(ctx, events.ReservationCreated, r, map[string]any{
		"customer_id":     r.CustomerID,
		"pharmacy_id":     r.PharmacyID,
		"prescription_id": r.PrescriptionID,
		"total":           r.Total().String(),
		"expires_at":      r.ExpiresAt,
	})
	for _, rec := range lowStock {
		events.Emit(ctx, m.publisher, m.logger, events.New(events.LowStockAlert, rec.Key.String(), now, map[string]any{
			"pharmacy_id": rec.Key.PharmacyID,
			"medicine_id": rec.Key.MedicineID,
			"available":   rec.Available(),
			"threshold":   rec.LowStockThreshold,
		}))
	}
	return r, nil
}

// releaseKeys undoes the reserves made so far in a failed create and returns
// cause joined with any release failure. The releases outlive a cancelled
// caller.
func (m *Manager) releaseKeys(ctx context.Context, keys []ledger.Key, lines []plannedLine, cause error) error {
	ctx, cancel := medreserve.Detach(ctx)
	defer cancel()

	errs := []error{cause}
	for i, key := range keys {
		if _, err := m.ledger.Release(ctx, key, lines[i].qty); err != nil {
			m.logger.Error("rollback release failed", zap.String("key", key.String()), zap.Error(err))
			errs = append(errs, fmt.Errorf("rollback %s: %w", key, err))
		}
	}
	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}

// releaseItems returns every held unit of r to the ledger. It runs after the
// status change committed, so it does not stop when the caller goes away.
func (m *Manager) releaseItems(ctx context.Context, r Reservation) error {
	ctx, cancel := medreserve.Detach(ctx)
	defer cancel()

	var errs []error
	for _, item := range r.Items {
		key := ledger.Key{PharmacyID: r.PharmacyID, MedicineID: item.MedicineID}
		if _, err := m.ledger.Release(ctx, key, item.Qty); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Error("release failed", zap.String("reservation_id", r.ID), zap.Error(err))
		return err
	}
	return nil
}

// transition applies action to r with a status compare-and-set. Losing a race
// reports the state the winner left behind.
func (m *Manager) transition(ctx context.Context, r Reservation, action logic.Action) (Reservation, error) {
	to, ok := logic.Next(r.Status, action)
	if !ok {
		return Reservation{}, logic.Reject(r.Resource(), r.Status, action)
	}
	updated, swapped, err := m.store.CompareAndSetStatus(ctx, r.ID, r.Status, to, m.now().UTC())
	if err != nil {
		return Reservation{}, err
	}
	if !swapped {
		return Reservation{}, logic.Reject(updated.Resource(), updated.Status, action)
	}
	return updated, nil
}

// Confirm commits a pending reservation for its owner, moving the held units
// out of stock. A confirm after the hold lapsed expires the reservation.
func (m *Manager) Confirm(ctx context.Context, actor medreserve.Actor, id string) (Reservation, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if !actor.Owns(r.CustomerID) {
		return Reservation{}, medreserve.NewForbidden(r.Resource(), logic.ErrMsgNotOwner)
	}
	if r.Status != logic.StatusPending {
		return Reservation{}, logic.Reject(r.Resource(), r.Status, logic.ActionConfirm)
	}
	if r.HoldExpired(m.now()) {
		if _, err := m.expire(ctx, r); err != nil && !m.isStatus(ctx, id, logic.StatusExpired) {
			return Reservation{}, err
		}
		return Reservation{}, medreserve.NewExpired(r.Resource(), logic.ErrMsgHoldExpired)
	}

	confirmed, err := m.transition(ctx, r, logic.ActionConfirm)
	if err != nil {
		return Reservation{}, err
	}
	if err := m.consumeItems(ctx, confirmed); err != nil {
		return Reservation{}, err
	}

	m.logger.Info("reservation confirmed", zap.String("reservation_id", id))
	m.emit(ctx, events.ReservationConfirmed, confirmed, map[string]any{
		"customer_id": confirmed.CustomerID,
		"total":       confirmed.Total().String(),
	})
	return confirmed, nil
}

// consumeItems moves the held units of a confirmed reservation out of stock.
// The status already committed, so the consumes outlive a cancelled caller.
func (m *Manager) consumeItems(ctx context.Context, r Reservation) error {
	ctx, cancel := medreserve.Detach(ctx)
	defer cancel()

	var errs []error
	for _, item := range r.Items {
		key := ledger.Key{PharmacyID: r.PharmacyID, MedicineID: item.MedicineID}
		if _, err := m.ledger.Consume(ctx, key, item.Qty); err != nil {
			errs = append(errs, fmt.Errorf("consume %s: %w", key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Error("consume failed after confirm", zap.String("reservation_id", r.ID), zap.Error(err))
		return err
	}
	return nil
}

// Cancel releases a pending reservation. The owner or an admin may cancel.
func (m *Manager) Cancel(ctx context.Context, actor medreserve.Actor, id string) (Reservation, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if !actor.Owns(r.CustomerID) && !actor.IsAdmin() {
		return Reservation{}, medreserve.NewForbidden(r.Resource(), logic.ErrMsgNotOwner)
	}

	cancelled, err := m.transition(ctx, r, logic.ActionCancel)
	if err != nil {
		return Reservation{}, err
	}
	if err := m.releaseItems(ctx, cancelled); err != nil {
		return Reservation{}, err
	}

	m.logger.Info("reservation cancelled", zap.String("reservation_id", id), zap.String("actor_id", actor.ID))
	m.emit(ctx, events.ReservationCancelled, cancelled, map[string]any{"actor_id": actor.ID})
	return cancelled, nil
}

// Expire is the system transition for a pending reservation whose hold lapsed.
// A reservation that already left pending is rejected without touching the
// ledger.
func (m *Manager) Expire(ctx context.Context, id string) (Reservation, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if r.Status == logic.StatusPending && !r.HoldExpired(m.now()) {
		return Reservation{}, medreserve.NewFailedPreconditionf("reservation %s hold has not lapsed", id)
	}
	return m.expire(ctx, r)
}

func (m *Manager) expire(ctx context.Context, r Reservation) (Reservation, error) {
	expired, err := m.transition(ctx, r, logic.ActionExpire)
	if err != nil {
		return Reservation{}, err
	}
	if err := m.releaseItems(ctx, expired); err != nil {
		return Reservation{}, err
	}

	m.logger.Info("reservation expired", zap.String("reservation_id", r.ID), zap.Time("expires_at", r.ExpiresAt))
	m.emit(ctx, events.ReservationExpired, expired, map[string]any{"expires_at": expired.ExpiresAt})
	return expired, nil
}

// Pickup records that pharmacy staff handed over a confirmed reservation.
func (m *Manager) Pickup(ctx context.Context, actor medreserve.Actor, id string) (Reservation, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if err := medreserve.RequireActor(actor); err != nil {
		return Reservation{}, err
	}
	if !actor.StaffOf(r.PharmacyID) {
		return Reservation{}, medreserve.NewForbidden(r.Resource(), logic.ErrMsgNotStaff)
	}

	picked, err := m.transition(ctx, r, logic.ActionPickup)
	if err != nil {
		return Reservation{}, err
	}

	m.logger.Info("reservation picked up", zap.String("reservation_id", id), zap.String("actor_id", actor.ID))
	m.emit(ctx, events.ReservationPickedUp, picked, map[string]any{"actor_id": actor.ID})
	return picked, nil
}

// Get returns a reservation visible to the actor: its owner, staff of its
// pharmacy, or an admin.
func (m *Manager) Get(ctx context.Context, actor medreserve.Actor, id string) (Reservation, error) {
	if err := medreserve.RequireActor(actor); err != nil {
		return Reservation{}, err
	}
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if !actor.Owns(r.CustomerID) && !actor.StaffOf(r.PharmacyID) {
		return Reservation{}, medreserve.NewForbidden(r.Resource(), logic.ErrMsgNotOwner)
	}
	return r, nil
}

// ListMine returns the actor's own reservations, newest first.
func (m *Manager) ListMine(ctx context.Context, actor medreserve.Actor) ([]Reservation, error) {
	if err := medreserve.RequireActor(actor); err != nil {
		return nil, err
	}
	return m.store.ListByCustomer(ctx, actor.ID)
}

// ListDue returns pending reservations whose hold has lapsed.
func (m *Manager) ListDue(ctx context.Context, limit int) ([]Reservation, error) {
	return m.store.ListDue(ctx, m.now().UTC(), limit)
}

// isStatus reports whether the stored reservation is currently in status.
func (m *Manager) isStatus(ctx context.Context, id string, status logic.Status) bool {
	r, err := m.store.Get(ctx, id)
	return err == nil && r.Status == status
}

func (m *Manager) emit(ctx context.Context, t events.Type, r Reservation, payload map[string]any) {
	events.Emit(ctx, m.publisher, m.logger, events.New(t, r.ID, r.UpdatedAt, payload))
}
