// Package api holds the wire shapes shared by the gRPC and HTTP transports and
// their conversions to and from the core types.
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/benjaminabbitt/medreserve/ledger"
	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription"
	rxlogic "github.com/benjaminabbitt/medreserve/prescription/logic"
	"github.com/benjaminabbitt/medreserve/reservation"
	reslogic "github.com/benjaminabbitt/medreserve/reservation/logic"
)

type AdjustStockRequest struct {
	PharmacyID        string           `json:"pharmacy_id"`
	MedicineID        string           `json:"medicine_id"`
	Delta             int              `json:"delta"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
}

func (r AdjustStockRequest) Key() ledger.Key {
	return ledger.Key{PharmacyID: r.PharmacyID, MedicineID: r.MedicineID}
}

func (r AdjustStockRequest) Adjustment() ledger.Adjustment {
	return ledger.Adjustment{Price: r.Price, LowStockThreshold: r.LowStockThreshold}
}

type InventoryQuery struct {
	PharmacyID    string `json:"pharmacy_id,omitempty"`
	MedicineID    string `json:"medicine_id,omitempty"`
	OnlyAvailable bool   `json:"only_available,omitempty"`
}

func (q InventoryQuery) Filter() ledger.Filter {
	return ledger.Filter{PharmacyID: q.PharmacyID, MedicineID: q.MedicineID, OnlyAvailable: q.OnlyAvailable}
}

type Inventory struct {
	ID                string          `json:"id"`
	PharmacyID        string          `json:"pharmacy_id"`
	MedicineID        string          `json:"medicine_id"`
	Stock             int             `json:"stock"`
	Reserved          int             `json:"reserved"`
	Available         int             `json:"available"`
	Price             decimal.Decimal `json:"price"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	LowStock          bool            `json:"low_stock"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func FromRecord(rec ledger.Record) Inventory {
	return Inventory{
		ID:                rec.ID.String(),
		PharmacyID:        rec.Key.PharmacyID,
		MedicineID:        rec.Key.MedicineID,
		Stock:             rec.Stock,
		Reserved:          rec.Reserved,
		Available:         rec.Available(),
		Price:             rec.Price,
		LowStockThreshold: rec.LowStockThreshold,
		LowStock:          rec.IsLowStock(),
		UpdatedAt:         rec.UpdatedAt,
	}
}

type InventoryList struct {
	Items []Inventory `json:"items"`
}

func FromRecords(recs []ledger.Record) InventoryList {
	out := InventoryList{Items: make([]Inventory, 0, len(recs))}
	for _, rec := range recs {
		out.Items = append(out.Items, FromRecord(rec))
	}
	return out
}

type ItemRequest struct {
	MedicineID string `json:"medicine_id"`
	Qty        int    `json:"qty"`
}

type CreateReservationRequest struct {
	PharmacyID string        `json:"pharmacy_id"`
	Items      []ItemRequest `json:"items"`
}

func (r CreateReservationRequest) ItemRequests() []reslogic.ItemRequest {
	out := make([]reslogic.ItemRequest, len(r.Items))
	for i, item := range r.Items {
		out[i] = reslogic.ItemRequest{MedicineID: item.MedicineID, Qty: item.Qty}
	}
	return out
}

// IDRequest addresses a single reservation or prescription.
type IDRequest struct {
	ID string `json:"id"`
}

type Reservation struct {
	ID             string              `json:"id"`
	CustomerID     string              `json:"customer_id"`
	PharmacyID     string              `json:"pharmacy_id"`
	Items          []reslogic.LineItem `json:"items"`
	Total          decimal.Decimal     `json:"total"`
	Status         string              `json:"status"`
	ExpiresAt      time.Time           `json:"expires_at"`
	PrescriptionID string              `json:"prescription_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func FromReservation(r reservation.Reservation) Reservation {
	return Reservation{
		ID:             r.ID,
		CustomerID:     r.CustomerID,
		PharmacyID:     r.PharmacyID,
		Items:          r.Items,
		Total:          r.Total(),
		Status:         string(r.Status),
		ExpiresAt:      r.ExpiresAt,
		PrescriptionID: r.PrescriptionID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type ReservationList struct {
	Items []Reservation `json:"items"`
}

func FromReservations(rs []reservation.Reservation) ReservationList {
	out := ReservationList{Items: make([]Reservation, 0, len(rs))}
	for _, r := range rs {
		out.Items = append(out.Items, FromReservation(r))
	}
	return out
}

// Upload is an inline prescription file. Data is base64 in JSON.
type Upload struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type SubmitPrescriptionRequest struct {
	PharmacyID string   `json:"pharmacy_id"`
	Note       string   `json:"note,omitempty"`
	Files      []Upload `json:"files"`
}

func (r SubmitPrescriptionRequest) Uploads() []rxlogic.Upload {
	out := make([]rxlogic.Upload, len(r.Files))
	for i, f := range r.Files {
		out[i] = rxlogic.Upload{Filename: f.Filename, MIMEType: f.MIMEType, Data: f.Data}
	}
	return out
}

type ListPrescriptionsRequest struct {
	PharmacyID string `json:"pharmacy_id"`
	Status     string `json:"status,omitempty"`
}

type DecisionRequest struct {
	ID                   string              `json:"id,omitempty"`
	Approve              bool                `json:"approve"`
	Items                []rxlogic.QuoteItem `json:"items,omitempty"`
	Total                *decimal.Decimal    `json:"total,omitempty"`
	Currency             string              `json:"currency,omitempty"`
	Note                 string              `json:"note,omitempty"`
	ReservationExpiresAt *time.Time          `json:"reservation_expires_at,omitempty"`
	Reason               string              `json:"reason,omitempty"`
}

func (r DecisionRequest) Decision() prescription.Decision {
	return prescription.Decision{
		Approve: r.Approve,
		Reason:  r.Reason,
		Quote: rxlogic.QuoteDraft{
			Items:                r.Items,
			Total:                r.Total,
			Currency:             r.Currency,
			Note:                 r.Note,
			ReservationExpiresAt: r.ReservationExpiresAt,
		},
	}
}

type Prescription struct {
	ID              string                `json:"id"`
	CustomerID      string                `json:"customer_id"`
	PharmacyID      string                `json:"pharmacy_id"`
	Files           []rxlogic.FileRef     `json:"files"`
	Note            string                `json:"note,omitempty"`
	Status          string                `json:"status"`
	ReviewerID      string                `json:"reviewer_id,omitempty"`
	Quote           *rxlogic.Quote        `json:"quote,omitempty"`
	Verification    *rxlogic.Verification `json:"verification,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func FromPrescription(p prescription.Prescription) Prescription {
	return Prescription{
		ID:              p.ID,
		CustomerID:      p.CustomerID,
		PharmacyID:      p.PharmacyID,
		Files:           p.Files,
		Note:            p.Note,
		Status:          string(p.Status),
		ReviewerID:      p.ReviewerID,
		Quote:           p.Quote,
		Verification:    p.Verification,
		RejectionReason: p.RejectionReason,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type PrescriptionList struct {
	Items []Prescription `json:"items"`
}

func FromPrescriptions(ps []prescription.Prescription) PrescriptionList {
	out := PrescriptionList{Items: make([]Prescription, 0, len(ps))}
	for _, p := range ps {
		out.Items = append(out.Items, FromPrescription(p))
	}
	return out
}

// ConfirmPrescriptionResponse pairs the consumed prescription with the
// reservation made from its quote.
type ConfirmPrescriptionResponse struct {
	Prescription Prescription `json:"prescription"`
	Reservation  Reservation  `json:"reservation"`
}

// Error is the JSON body of a rejected HTTP request.
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`
}

// FromError renders err for clients. Infrastructure errors are not exposed.
func FromError(err error) Error {
	if cmdErr := medreserve.AsCommandError(err); cmdErr != nil {
		return Error{Code: cmdErr.Code.String(), Message: cmdErr.Message, Resource: cmdErr.Resource}
	}
	return Error{Code: "INTERNAL", Message: "internal error"}
}
