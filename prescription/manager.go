// Package prescription tracks uploaded prescriptions through pharmacist review
// and turns an approved quote into a reservation.
package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/benjaminabbitt/medreserve/events"
	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription/logic"
	"github.com/benjaminabbitt/medreserve/reservation"
)

// Prescription is the persisted prescription.
type Prescription = logic.Prescription

// FileStore stores raw uploads and hands back durable references.
type FileStore interface {
	Put(ctx context.Context, upload logic.Upload) (logic.FileRef, error)
	Delete(ctx context.Context, ref logic.FileRef) error
}

// Reserver turns a quote into a reservation. *reservation.Manager implements it.
type Reserver interface {
	CreateFromQuote(ctx context.Context, order reservation.QuoteOrder) (reservation.Reservation, error)
}

// Manager owns the prescription lifecycle.
type Manager struct {
	store         Store
	files         FileStore
	reserver      Reserver
	quoteValidity time.Duration
	maxFileSize   int64
	now           func() time.Time
	logger        *zap.Logger
	publisher     events.Publisher
}

type Option func(*Manager)

// WithQuoteValidity sets the default confirmation window of approved quotes.
func WithQuoteValidity(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.quoteValidity = d
		}
	}
}

// WithMaxFileSize caps the size of a single upload in bytes.
func WithMaxFileSize(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxFileSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func NewManager(store Store, files FileStore, reserver Reserver, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		files:         files,
		reserver:      reserver,
		quoteValidity: logic.DefaultQuoteValidity,
		maxFileSize:   logic.DefaultMaxFileSize,
		now:           time.Now,
		logger:        zap.NewNop(),
		publisher:     events.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxFileSize reports the per-file upload limit.
func (m *Manager) MaxFileSize() int64 {
	return m.maxFileSize
}

// Submit validates and stores the uploads, then records a submitted
// prescription holding only the file references.
func (m *Manager) Submit(ctx context.Context, actor medreserve.Actor, pharmacyID string, uploads []logic.Upload, note string) (Prescription, error) {
	if err := medreserve.RequireRole(actor, medreserve.RoleCustomer, medreserve.RoleAdmin); err != nil {
		return Prescription{}, err
	}
	if err := medreserve.RequireNonEmpty(pharmacyID, "pharmacy_id"); err != nil {
		return Prescription{}, err
	}
	if err := logic.ValidateUploads(uploads, m.maxFileSize); err != nil {
		return Prescription{}, err
	}

	refs := make([]logic.FileRef, 0, len(uploads))
	for _, u := range uploads {
		ref, err := m.files.Put(ctx, u)
		if err != nil {
			m.discard(ctx, refs)
			return Prescription{}, fmt.Errorf("store upload %s: %w", u.Filename, err)
		}
		refs = append(refs, ref)
	}

	now := m.now().UTC()
	p := Prescription{
		ID:         medreserve.NewID(),
		CustomerID: actor.ID,
		PharmacyID: pharmacyID,
		Files:      refs,
		Note:       note,
		Status:     logic.StatusSubmitted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Insert(ctx, p); err != nil {
		m.discard(ctx, refs)
		return Prescription{}, fmt.Errorf("persist prescription: %w", err)
	}

	m.logger.Info("prescription submitted",
		zap.String("prescription_id", p.ID),
		zap.String("customer_id", p.CustomerID),
		zap.String("pharmacy_id", p.PharmacyID),
		zap.Int("files", len(refs)),
	)
	m.emit(ctx, events.PrescriptionSubmitted, p, map[string]any{
		"customer_id": p.CustomerID,
		"pharmacy_id": p.PharmacyID,
		"files":       len(refs),
	})
	return p, nil
}

// discard removes stored files of a submission that did not go through.
func (m *Manager) discard(ctx context.Context, refs []logic.FileRef) {
	ctx, cancel := medreserve.Detach(ctx)
	defer cancel()

	for _, ref := range refs {
		if err := m.files.Delete(ctx, ref); err != nil {
			m.logger.Warn("orphaned upload", zap.String("url", ref.URL), zap.Error(err))
		}
	}
}

// swap applies action through a status compare-and-swap. mutate fills in the
// fields the action changes.
func (m *Manager) swap(ctx context.Context, p Prescription, action logic.Action, mutate func(next *Prescription)) (Prescription, error) {
	to, ok := logic.Next(p.Status, action)
	if !ok {
		return Prescription{}, logic.Reject(p.Resource(), p.Status, action)
	}
	from := p.Status
	next := p
	next.Status = to
	next.UpdatedAt = m.now().UTC()
	if mutate != nil {
		mutate(&next)
	}
	updated, swapped, err := m.store.CompareAndSwap(ctx, from, next)
	if err != nil {
		return Prescription{}, err
	}
	if !swapped {
		return Prescription{}, logic.Reject(updated.Resource(), updated.Status, action)
	}
	return updated, nil
}

// StartReview lets pharmacy staff claim a submitted prescription.
func (m *Manager) StartReview(ctx context.Context, actor medreserve.Actor, id string) (Prescription, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	if err := medreserve.RequireStaffOf(actor, p.PharmacyID); err != nil {
		return Prescription{}, err
	}

	updated, err := m.swap(ctx, p, logic.ActionReview, func(next *Prescription) {
		next.ReviewerID = actor.ID
	})
	if err != nil {
		return Prescription{}, err
	}

	m.logger.Info("prescription review started", zap.String("prescription_id", id), zap.String("reviewer_id", actor.ID))
	m.emit(ctx, events.PrescriptionReviewStarted, updated, map[string]any{"reviewer_id": actor.ID})
	return updated, nil
}

// Decision is the pharmacist's verdict on a prescription under review.
type Decision struct {
	Approve bool
	Quote   logic.QuoteDraft
	// Reason is required when rejecting.
	Reason string
}

// Decide approves with a quote or rejects with a reason. Only the claiming
// reviewer or an admin may decide. Approval never touches the ledger.
func (m *Manager) Decide(ctx context.Context, actor medreserve.Actor, id string, d Decision) (Prescription, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	if err := medreserve.RequireStaffOf(actor, p.PharmacyID); err != nil {
		return Prescription{}, err
	}
	if p.Status != logic.StatusUnderReview {
		return Prescription{}, logic.Reject(p.Resource(), p.Status, decisionAction(d))
	}
	if p.ReviewerID != actor.ID && !actor.IsAdmin() {
		return Prescription{}, medreserve.NewForbidden(p.Resource(), logic.ErrMsgNotReviewer)
	}

	now := m.now().UTC()
	if d.Approve {
		quote, err := logic.BuildQuote(d.Quote, now, m.quoteValidity)
		if err != nil {
			return Prescription{}, err
		}
		updated, err := m.swap(ctx, p, logic.ActionApprove, func(next *Prescription) {
			next.Quote = &quote
			next.Verification = &logic.Verification{Valid: true, Reason: d.Reason, VerifiedBy: actor.ID, VerifiedAt: now}
		})
		if err != nil {
			return Prescription{}, err
		}
		m.logger.Info("prescription approved",
			zap.String("prescription_id", id),
			zap.String("total", quote.Total.String()),
			zap.String("currency", quote.Currency),
			zap.Time("reservation_expires_at", quote.ReservationExpiresAt),
		)
		m.emit(ctx, events.PrescriptionApproved, updated, map[string]any{
			"total":                  quote.Total.String(),
			"currency":               quote.Currency,
			"reservation_expires_at": quote.ReservationExpiresAt,
		})
		return updated, nil
	}

	if strings.TrimSpace(d.Reason) == "" {
		return Prescription{}, medreserve.NewInvalidArgument(logic.ErrMsgReasonRequired)
	}
	updated, err := m.swap(ctx, p, logic.ActionReject, func(next *Prescription) {
		next.RejectionReason = d.Reason
		next.Verification = &logic.Verification{Valid: false, Reason: d.Reason, VerifiedBy: actor.ID, VerifiedAt: now}
	})
	if err != nil {
		return Prescription{}, err
	}
	m.logger.Info("prescription rejected", zap.String("prescription_id", id), zap.String("reason", d.Reason))
	m.emit(ctx, events.PrescriptionRejected, updated, map[string]any{"reason": d.Reason})
	return updated, nil
}

func decisionAction(d Decision) logic.Action {
	if d.Approve {
		return logic.ActionApprove
	}
	return logic.ActionReject
}

// ConfirmToReservation consumes an approved quote exactly once and reserves
// its items at the quoted prices. The prescription is claimed first; when the
// reservation cannot be made the claim is undone and the quote stays
// confirmable until it expires.
func (m *Manager) ConfirmToReservation(ctx context.Context, actor medreserve.Actor, id string) (Prescription, reservation.Reservation, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return Prescription{}, reservation.Reservation{}, err
	}
	if !actor.Owns(p.CustomerID) {
		return Prescription{}, reservation.Reservation{}, medreserve.NewForbidden(p.Resource(), logic.ErrMsgNotOwner)
	}
	if p.Status != logic.StatusApprovedWithQuote {
		return Prescription{}, reservation.Reservation{}, logic.Reject(p.Resource(), p.Status, logic.ActionConsume)
	}
	if p.Quote == nil || p.Quote.IsExpired(m.now()) {
		return Prescription{}, reservation.Reservation{}, medreserve.NewExpired(p.Resource(), logic.ErrMsgQuoteExpired)
	}

	consumed, err := m.swap(ctx, p, logic.ActionConsume, nil)
	if err != nil {
		return Prescription{}, reservation.Reservation{}, err
	}

	r, err := m.reserver.CreateFromQuote(ctx, reservation.QuoteOrder{
		CustomerID:     consumed.CustomerID,
		PharmacyID:     consumed.PharmacyID,
		PrescriptionID: consumed.ID,
		Items:          consumed.Quote.LineItems(),
	})
	if err != nil {
		if restoreErr := m.restore(ctx, consumed); restoreErr != nil {
			m.logger.Error("restore after failed reservation failed",
				zap.String("prescription_id", id),
				zap.Error(restoreErr),
			)
			return Prescription{}, reservation.Reservation{}, errors.Join(err, fmt.Errorf("restore %s: %w", p.Resource(), restoreErr))
		}
		m.logger.Info("prescription confirm failed, quote restored", zap.String("prescription_id", id), zap.Error(err))
		return Prescription{}, reservation.Reservation{}, err
	}

	m.logger.Info("prescription consumed",
		zap.String("prescription_id", id),
		zap.String("reservation_id", r.ID),
	)
	m.emit(ctx, events.PrescriptionConsumed, consumed, map[string]any{"reservation_id": r.ID})
	return consumed, r, nil
}

// restore returns a claimed prescription to approved_with_quote after its
// reservation could not be made. It runs even when the caller went away.
func (m *Manager) restore(ctx context.Context, consumed Prescription) error {
	ctx, cancel := medreserve.Detach(ctx)
	defer cancel()

	_, err := m.swap(ctx, consumed, logic.ActionRestore, nil)
	return err
}

// Cancel withdraws a prescription that has not been decided yet. The owner or
// an admin may cancel.
func (m *Manager) Cancel(ctx context.Context, actor medreserve.Actor, id string) (Prescription, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	if !actor.Owns(p.CustomerID) && !actor.IsAdmin() {
		return Prescription{}, medreserve.NewForbidden(p.Resource(), logic.ErrMsgNotOwner)
	}

	updated, err := m.swap(ctx, p, logic.ActionCancel, nil)
	if err != nil {
		return Prescription{}, err
	}

	m.logger.Info("prescription cancelled", zap.String("prescription_id", id), zap.String("actor_id", actor.ID))
	m.emit(ctx, events.PrescriptionCancelled, updated, map[string]any{"actor_id": actor.ID})
	return updated, nil
}

// Get returns a prescription visible to its owner, its pharmacy's staff or an admin.
func (m *Manager) Get(ctx context.Context, actor medreserve.Actor, id string) (Prescription, error) {
	if err := medreserve.RequireActor(actor); err != nil {
		return Prescription{}, err
	}
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	if !actor.Owns(p.CustomerID) && !actor.StaffOf(p.PharmacyID) {
		return Prescription{}, medreserve.NewForbidden(p.Resource(), logic.ErrMsgNotOwner)
	}
	return p, nil
}

// ListMine returns the actor's own prescriptions, newest first.
func (m *Manager) ListMine(ctx context.Context, actor medreserve.Actor) ([]Prescription, error) {
	if err := medreserve.RequireActor(actor); err != nil {
		return nil, err
	}
	return m.store.ListByCustomer(ctx, actor.ID)
}

// ListForPharmacy is the review queue of a pharmacy. An empty status lists
// every prescription.
func (m *Manager) ListForPharmacy(ctx context.Context, actor medreserve.Actor, pharmacyID, status string) ([]Prescription, error) {
	if err := medreserve.RequireStaffOf(actor, pharmacyID); err != nil {
		return nil, err
	}
	var st logic.Status
	if status != "" {
		parsed, ok := logic.ParseStatus(status)
		if !ok {
			return nil, medreserve.NewInvalidArgument("unknown prescription status " + status)
		}
		st = parsed
	}
	return m.store.ListByPharmacy(ctx, pharmacyID, st)
}

func (m *Manager) emit(ctx context.Context, t events.Type, p Prescription, payload map[string]any) {
	events.Emit(ctx, m.publisher, m.logger, events.New(t, p.ID, p.UpdatedAt, payload))
}
