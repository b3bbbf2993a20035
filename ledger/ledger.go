// Package ledger keeps per (pharmacy, medicine) stock and reserved counters.
//
// Every operation on a key is linearizable with respect to other operations on
// the same key. Operations on different keys never coordinate.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/benjaminabbitt/medreserve/medreserve"
)

// Key identifies an inventory record.
type Key struct {
	PharmacyID string
	MedicineID string
}

func (k Key) String() string {
	return "inventory:" + k.PharmacyID + "/" + k.MedicineID
}

// Root is the deterministic record id for the key.
func (k Key) Root() uuid.UUID {
	return medreserve.InventoryRoot(k.PharmacyID, k.MedicineID)
}

func (k Key) validate() *medreserve.CommandError {
	if err := medreserve.RequireNonEmpty(k.PharmacyID, "pharmacy_id"); err != nil {
		return err
	}
	return medreserve.RequireNonEmpty(k.MedicineID, "medicine_id")
}

// Record is the inventory state of one key. Reserved never exceeds Stock.
type Record struct {
	ID                uuid.UUID
	Key               Key
	Stock             int
	Reserved          int
	Price             decimal.Decimal
	LowStockThreshold int
	UpdatedAt         time.Time
}

// Available is the sellable quantity.
func (r Record) Available() int {
	return r.Stock - r.Reserved
}

// IsLowStock reports whether the sellable quantity is under the threshold.
func (r Record) IsLowStock() bool {
	return r.Available() < r.LowStockThreshold
}

// Adjustment carries optional attribute updates for AdjustStock.
type Adjustment struct {
	Price             *decimal.Decimal
	LowStockThreshold *int
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	PharmacyID    string
	MedicineID    string
	OnlyAvailable bool
}

func (f Filter) matches(r Record) bool {
	if f.PharmacyID != "" && r.Key.PharmacyID != f.PharmacyID {
		return false
	}
	if f.MedicineID != "" && r.Key.MedicineID != f.MedicineID {
		return false
	}
	if f.OnlyAvailable && r.Available() <= 0 {
		return false
	}
	return true
}

// Ledger is the inventory ledger contract.
type Ledger interface {
	// AdjustStock applies stock += delta, creating the record with
	// stock=max(delta,0) when absent. Fails with InvalidQuantity when the
	// resulting stock would drop below reserved.
	AdjustStock(ctx context.Context, key Key, delta int, adj Adjustment) (Record, error)
	// Reserve atomically checks stock-reserved >= qty and increments reserved.
	// A key without a record has nothing available.
	Reserve(ctx context.Context, key Key, qty int) (Record, error)
	// Release decrements reserved, floored at zero.
	Release(ctx context.Context, key Key, qty int) (Record, error)
	// Consume decrements both stock and reserved.
	Consume(ctx context.Context, key Key, qty int) (Record, error)
	Get(ctx context.Context, key Key) (Record, error)
	List(ctx context.Context, filter Filter) ([]Record, error)
}

func validateAdjustment(key Key, adj Adjustment) *medreserve.CommandError {
	if adj.Price != nil && adj.Price.IsNegative() {
		return medreserve.NewInvalidQuantity(key.String(), "price cannot be negative")
	}
	if adj.LowStockThreshold != nil {
		return medreserve.RequireNonNegative(*adj.LowStockThreshold, key.String(), "low stock threshold cannot be negative")
	}
	return nil
}

// missingAsEmpty treats an absent record as one with nothing available.
func missingAsEmpty(key Key, qty int, err error) error {
	if errors.Is(err, medreserve.ErrNotFound) {
		return medreserve.NewInsufficientStock(key.String(), 0, qty)
	}
	return err
}

func notFound(key Key) *medreserve.CommandError {
	return medreserve.NewNotFound(key.String(), "inventory record not found")
}

// CrossedLowStock reports whether a reserve moved the record from at or above
// its threshold to below it.
func CrossedLowStock(after Record, reservedQty int) bool {
	if after.LowStockThreshold <= 0 {
		return false
	}
	before := after.Available() + reservedQty
	return after.IsLowStock() && before >= after.LowStockThreshold
}

var (
	_ Ledger = (*MemoryLedger)(nil)
	_ Ledger = (*PostgresLedger)(nil)
)
