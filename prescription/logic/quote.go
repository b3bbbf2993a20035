package logic

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/benjaminabbitt/medreserve/medreserve"
	reservation "github.com/benjaminabbitt/medreserve/reservation/logic"
)

// DefaultCurrency is used when a pharmacist leaves the quote currency empty.
const DefaultCurrency = "LKR"

// DefaultQuoteValidity is how long an approved quote can be confirmed.
const DefaultQuoteValidity = 24 * time.Hour

// QuoteItem is one priced medicine line offered by the pharmacist.
type QuoteItem struct {
	MedicineID string          `json:"medicine_id"`
	Name       string          `json:"name,omitempty"`
	Qty        int             `json:"qty"`
	Price      decimal.Decimal `json:"price"`
}

// Quote is the pharmacist's offer. It is immutable once a reservation was
// made from it.
type Quote struct {
	Items                []QuoteItem     `json:"items"`
	Total                decimal.Decimal `json:"total"`
	Currency             string          `json:"currency"`
	Note                 string          `json:"note,omitempty"`
	ReservationExpiresAt time.Time       `json:"reservation_expires_at"`
}

// IsExpired reports whether the confirmation window has closed at now.
func (q Quote) IsExpired(now time.Time) bool {
	return !now.Before(q.ReservationExpiresAt)
}

// LineItems converts the quote into reservation lines at the quoted prices.
func (q Quote) LineItems() []reservation.LineItem {
	items := make([]reservation.LineItem, len(q.Items))
	for i, item := range q.Items {
		items[i] = reservation.LineItem{
			MedicineID:     item.MedicineID,
			Name:           item.Name,
			Qty:            item.Qty,
			PriceAtReserve: item.Price,
		}
	}
	return items
}

// QuoteDraft is the pharmacist's input. Nil Total is computed from the items;
// nil ReservationExpiresAt defaults to the quote validity window.
type QuoteDraft struct {
	Items                []QuoteItem
	Total                *decimal.Decimal
	Currency             string
	Note                 string
	ReservationExpiresAt *time.Time
}

// BuildQuote validates a draft into a quote.
func BuildQuote(draft QuoteDraft, now time.Time, validity time.Duration) (Quote, error) {
	if err := medreserve.RequireNotEmpty(draft.Items, ErrMsgQuoteItemsRequired); err != nil {
		return Quote{}, err
	}

	total := decimal.Zero
	items := make([]QuoteItem, len(draft.Items))
	for i, item := range draft.Items {
		if err := medreserve.RequireNonEmpty(item.MedicineID, "medicine_id"); err != nil {
			return Quote{}, err
		}
		resource := "medicine:" + item.MedicineID
		if err := medreserve.RequirePositive(item.Qty, resource); err != nil {
			return Quote{}, err
		}
		if item.Price.IsNegative() {
			return Quote{}, medreserve.NewInvalidQuantity(resource, ErrMsgPriceNegative)
		}
		items[i] = item
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	if draft.Total != nil && !draft.Total.Equal(total) {
		return Quote{}, medreserve.NewInvalidArgument(
			fmt.Sprintf("quote total %s does not match item total %s", draft.Total.String(), total.String()))
	}

	currency := strings.ToUpper(strings.TrimSpace(draft.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return Quote{}, medreserve.NewInvalidArgument(ErrMsgCurrencyInvalid)
	}

	if validity <= 0 {
		validity = DefaultQuoteValidity
	}
	expiresAt := now.Add(validity)
	if draft.ReservationExpiresAt != nil {
		expiresAt = draft.ReservationExpiresAt.UTC()
	}
	if !expiresAt.After(now) {
		return Quote{}, medreserve.NewInvalidArgument(ErrMsgQuoteExpiryPast)
	}

	return Quote{
		Items:                items,
		Total:                total,
		Currency:             currency,
		Note:                 draft.Note,
		ReservationExpiresAt: expiresAt,
	}, nil
}
