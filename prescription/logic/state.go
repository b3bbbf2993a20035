package logic

import (
	"time"

	"github.com/benjaminabbitt/medreserve/medreserve"
)

// Verification records the pharmacist's judgement of the prescription.
type Verification struct {
	Valid      bool      `json:"valid"`
	Reason     string    `json:"reason,omitempty"`
	VerifiedBy string    `json:"verified_by"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Prescription is a customer's uploaded prescription at one pharmacy. It never
// references the reservation made from its quote.
type Prescription struct {
	ID              string
	CustomerID      string
	PharmacyID      string
	Files           []FileRef
	Note            string
	Status          Status
	ReviewerID      string
	Quote           *Quote
	Verification    *Verification
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Resource names the prescription in error messages.
func (p Prescription) Resource() string {
	return "prescription:" + p.ID
}

func newInvalidFile(resource, msg string) *medreserve.CommandError {
	return medreserve.NewInvalidFile(resource, msg)
}
