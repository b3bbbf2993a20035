package prescription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription/logic"
	"github.com/benjaminabbitt/medreserve/storage/postgres/pgtest"
)

func samplePrescription(id, customerID, pharmacyID string, created time.Time) logic.Prescription {
	return logic.Prescription{
		ID:         id,
		CustomerID: customerID,
		PharmacyID: pharmacyID,
		Files: []logic.FileRef{
			{URL: "/uploads/" + id + ".png", MIMEType: "image/png", Kind: logic.KindImage, Size: 2048, Backend: logic.BackendLocal},
		},
		Note:      "after meals",
		Status:    logic.StatusSubmitted,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, samplePrescription("p1", "c1", "P", base)))

		got, err := s.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.CustomerID)
		assert.Equal(t, "after meals", got.Note)
		assert.Equal(t, logic.StatusSubmitted, got.Status)
		require.Len(t, got.Files, 1)
		assert.Equal(t, logic.KindImage, got.Files[0].Kind)
		assert.Equal(t, int64(2048), got.Files[0].Size)
		assert.Nil(t, got.Quote)
		assert.Nil(t, got.Verification)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.True(t, errors.Is(err, medreserve.ErrNotFound), "got %v", err)
	})

	t.Run("CompareAndSwapCarriesQuote", func(t *testing.T) {
		s := newStore(t)
		p := samplePrescription("p1", "c1", "P", base)
		require.NoError(t, s.Insert(ctx, p))

		next := p
		next.Status = logic.StatusApprovedWithQuote
		next.ReviewerID = "pharm"
		next.UpdatedAt = base.Add(time.Minute)
		next.Quote = &logic.Quote{
			Items:                []logic.QuoteItem{{MedicineID: "M", Qty: 5, Price: decimal.RequireFromString("100.00")}},
			Total:                decimal.RequireFromString("500"),
			Currency:             "LKR",
			ReservationExpiresAt: base.Add(time.Hour),
		}
		next.Verification = &logic.Verification{Valid: true, VerifiedBy: "pharm", VerifiedAt: base.Add(time.Minute)}
		next.Note = "rewritten"

		updated, swapped, err := s.CompareAndSwap(ctx, logic.StatusSubmitted, next)
		require.NoError(t, err)
		assert.True(t, swapped)
		assert.Equal(t, logic.StatusApprovedWithQuote, updated.Status)
		assert.Equal(t, "after meals", updated.Note, "immutable fields survive a swap")

		got, err := s.Get(ctx, "p1")
		require.NoError(t, err)
		require.NotNil(t, got.Quote)
		assert.True(t, got.Quote.Total.Equal(decimal.NewFromInt(500)))
		assert.True(t, got.Quote.ReservationExpiresAt.Equal(base.Add(time.Hour)))
		require.NotNil(t, got.Verification)
		assert.True(t, got.Verification.Valid)
		assert.Equal(t, "pharm", got.ReviewerID)
	})

	t.Run("CompareAndSwapLosesOnStaleStatus", func(t *testing.T) {
		s := newStore(t)
		p := samplePrescription("p1", "c1", "P", base)
		require.NoError(t, s.Insert(ctx, p))

		next := p
		next.Status = logic.StatusCancelled
		current, swapped, err := s.CompareAndSwap(ctx, logic.StatusUnderReview, next)
		require.NoError(t, err)
		assert.False(t, swapped)
		assert.Equal(t, logic.StatusSubmitted, current.Status)

		next.ID = "missing"
		_, _, err = s.CompareAndSwap(ctx, logic.StatusSubmitted, next)
		assert.True(t, errors.Is(err, medreserve.ErrNotFound), "got %v", err)
	})

	t.Run("Lists", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, samplePrescription("old", "c1", "P", base)))
		require.NoError(t, s.Insert(ctx, samplePrescription("new", "c1", "P", base.Add(time.Hour))))
		other := samplePrescription("other", "c2", "Q", base)
		require.NoError(t, s.Insert(ctx, other))

		mine, err := s.ListByCustomer(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, "new", mine[0].ID)

		next := samplePrescription("old", "c1", "P", base)
		next.Status = logic.StatusUnderReview
		_, swapped, err := s.CompareAndSwap(ctx, logic.StatusSubmitted, next)
		require.NoError(t, err)
		require.True(t, swapped)

		queue, err := s.ListByPharmacy(ctx, "P", logic.StatusSubmitted)
		require.NoError(t, err)
		require.Len(t, queue, 1)
		assert.Equal(t, "new", queue[0].ID)

		all, err := s.ListByPharmacy(ctx, "P", "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestPostgresStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewPostgresStore(pgtest.Pool(t)) })
}
