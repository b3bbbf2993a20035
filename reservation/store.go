package reservation

import (
	"context"
	"time"

	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/reservation/logic"
)

// Store persists reservations. Status changes go through CompareAndSetStatus
// so exactly one of several racing transitions wins.
type Store interface {
	Insert(ctx context.Context, r logic.Reservation) error
	// Get fails with NotFound when id is unknown.
	Get(ctx context.Context, id string) (logic.Reservation, error)
	// CompareAndSetStatus moves id from one status to another. When the stored
	// status is not from, it returns the stored reservation and false.
	CompareAndSetStatus(ctx context.Context, id string, from, to logic.Status, at time.Time) (logic.Reservation, bool, error)
	// ListByCustomer returns the customer's reservations, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]logic.Reservation, error)
	// ListDue returns up to limit pending reservations whose hold lapsed at
	// or before now, oldest expiry first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]logic.Reservation, error)
}

func notFound(id string) error {
	return medreserve.NewNotFound("reservation:"+id, logic.ErrMsgReservationMissing)
}
