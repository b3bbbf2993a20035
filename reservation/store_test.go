package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/reservation/logic"
	"github.com/benjaminabbitt/medreserve/storage/postgres/pgtest"
)

func sampleReservation(id, customerID string, created time.Time) logic.Reservation {
	return logic.Reservation{
		ID:         id,
		CustomerID: customerID,
		PharmacyID: "P",
		Items: []logic.LineItem{
			{MedicineID: "M", Name: "Paracetamol", Qty: 2, PriceAtReserve: decimal.RequireFromString("12.50")},
		},
		Status:    logic.StatusPending,
		ExpiresAt: created.Add(30 * time.Minute),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore(t)
		r := sampleReservation("r1", "c1", base)
		r.PrescriptionID = "rx-9"
		require.NoError(t, s.Insert(ctx, r))

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.CustomerID)
		assert.Equal(t, "rx-9", got.PrescriptionID)
		assert.Equal(t, logic.StatusPending, got.Status)
		require.Len(t, got.Items, 1)
		assert.True(t, got.Items[0].PriceAtReserve.Equal(decimal.RequireFromString("12.5")))
		assert.True(t, got.ExpiresAt.Equal(r.ExpiresAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.True(t, errors.Is(err, medreserve.ErrNotFound), "got %v", err)
	})

	t.Run("CompareAndSetStatus", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, sampleReservation("r1", "c1", base)))

		updated, swapped, err := s.CompareAndSetStatus(ctx, "r1", logic.StatusPending, logic.StatusCancelled, base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, swapped)
		assert.Equal(t, logic.StatusCancelled, updated.Status)

		current, swapped, err := s.CompareAndSetStatus(ctx, "r1", logic.StatusPending, logic.StatusConfirmed, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.False(t, swapped)
		assert.Equal(t, logic.StatusCancelled, current.Status)

		_, _, err = s.CompareAndSetStatus(ctx, "missing", logic.StatusPending, logic.StatusConfirmed, base)
		assert.True(t, errors.Is(err, medreserve.ErrNotFound), "got %v", err)
	})

	t.Run("ListByCustomerNewestFirst", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, sampleReservation("old", "c1", base)))
		require.NoError(t, s.Insert(ctx, sampleReservation("new", "c1", base.Add(time.Hour))))
		require.NoError(t, s.Insert(ctx, sampleReservation("other", "c2", base)))

		list, err := s.ListByCustomer(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "new", list[0].ID)
		assert.Equal(t, "old", list[1].ID)
	})

	t.Run("ListDue", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, sampleReservation("due-late", "c1", base.Add(-10*time.Minute))))
		require.NoError(t, s.Insert(ctx, sampleReservation("due-early", "c1", base.Add(-20*time.Minute))))
		require.NoError(t, s.Insert(ctx, sampleReservation("live", "c1", base)))
		done := sampleReservation("done", "c1", base.Add(-time.Hour))
		done.Status = logic.StatusConfirmed
		require.NoError(t, s.Insert(ctx, done))

		now := base.Add(25 * time.Minute)
		due, err := s.ListDue(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "due-early", due[0].ID)
		assert.Equal(t, "due-late", due[1].ID)

		limited, err := s.ListDue(ctx, now, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestPostgresStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewPostgresStore(pgtest.Pool(t)) })
}
