package logic

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/benjaminabbitt/medreserve/medreserve"
)

// ItemRequest is a requested quantity of one medicine.
type ItemRequest struct {
	MedicineID string
	Qty        int
}

// LineItem is a reserved quantity with its price fixed at reservation time.
type LineItem struct {
	MedicineID     string          `json:"medicine_id"`
	Name           string          `json:"name,omitempty"`
	Qty            int             `json:"qty"`
	PriceAtReserve decimal.Decimal `json:"price_at_reserve"`
}

// Subtotal is qty times the snapshotted unit price.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.PriceAtReserve.Mul(decimal.NewFromInt(int64(i.Qty)))
}

// Reservation is a customer's hold on stock at one pharmacy.
type Reservation struct {
	ID             string
	CustomerID     string
	PharmacyID     string
	Items          []LineItem
	Status         Status
	ExpiresAt      time.Time
	PrescriptionID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Resource names the reservation in error messages.
func (r Reservation) Resource() string {
	return "reservation:" + r.ID
}

// Total sums the line subtotals.
func (r Reservation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// HoldExpired reports whether the pending hold lapsed at now.
func (r Reservation) HoldExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// MergeItems validates requests and folds duplicate medicine lines together,
// keeping first-seen order.
func MergeItems(requests []ItemRequest) ([]ItemRequest, error) {
	if err := medreserve.RequireNotEmpty(requests, ErrMsgItemsRequired); err != nil {
		return nil, err
	}

	merged := make([]ItemRequest, 0, len(requests))
	index := make(map[string]int, len(requests))
	for _, req := range requests {
		if err := medreserve.RequireNonEmpty(req.MedicineID, "medicine_id"); err != nil {
			return nil, err
		}
		if err := medreserve.RequirePositive(req.Qty, "medicine:"+req.MedicineID); err != nil {
			return nil, err
		}
		if i, ok := index[req.MedicineID]; ok {
			merged[i].Qty += req.Qty
			continue
		}
		index[req.MedicineID] = len(merged)
		merged = append(merged, req)
	}
	return merged, nil
}
