// Package events describes lifecycle notifications and the publishers that
// deliver them.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benjaminabbitt/medreserve/medreserve"
)

// Type names a lifecycle notification. It doubles as the AMQP routing key suffix.
type Type string

const (
	InventoryAdjusted Type = "inventory.adjusted"
	LowStockAlert     Type = "inventory.low_stock"

	ReservationCreated   Type = "reservation.created"
	ReservationConfirmed Type = "reservation.confirmed"
	ReservationCancelled Type = "reservation.cancelled"
	ReservationExpired   Type = "reservation.expired"
	ReservationPickedUp  Type = "reservation.picked_up"

	PrescriptionSubmitted     Type = "prescription.submitted"
	PrescriptionReviewStarted Type = "prescription.review_started"
	PrescriptionApproved      Type = "prescription.approved"
	PrescriptionRejected      Type = "prescription.rejected"
	PrescriptionCancelled     Type = "prescription.cancelled"
	PrescriptionConsumed      Type = "prescription.consumed"
)

// Event is a single notification about an aggregate.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Type        Type           `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// New builds an event whose id is derived from its type, aggregate and time,
// so a redelivered notification keeps its id.
func New(t Type, aggregateID string, at time.Time, payload map[string]any) Event {
	at = at.UTC()
	return Event{
		ID:          medreserve.ComputeRoot(string(t), aggregateID+"@"+at.Format(time.RFC3339Nano)),
		Type:        t,
		AggregateID: aggregateID,
		OccurredAt:  at,
		Payload:     payload,
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("event",
		zap.String("event_id", e.ID.String()),
		zap.String("type", string(e.Type)),
		zap.String("aggregate_id", e.AggregateID),
		zap.Time("occurred_at", e.OccurredAt),
		zap.Any("payload", e.Payload),
	)
	return nil
}

// FanOut publishes to every sink and joins their failures.
type FanOut []Publisher

func (f FanOut) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of the given type in publish order.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Emit publishes e and logs a failure instead of returning it. Lifecycle
// changes are already committed when notifications go out.
func Emit(ctx context.Context, p Publisher, logger *zap.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil && logger != nil {
		logger.Warn("event publish failed",
			zap.String("type", string(e.Type)),
			zap.String("aggregate_id", e.AggregateID),
			zap.Error(err),
		)
	}
}
