package prescription

import (
	"context"

	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription/logic"
)

// Store persists prescriptions. Every lifecycle change is a compare-and-swap
// on the stored status.
type Store interface {
	Insert(ctx context.Context, p logic.Prescription) error
	// Get fails with NotFound when id is unknown.
	Get(ctx context.Context, id string) (logic.Prescription, error)
	// CompareAndSwap replaces the mutable fields of next.ID with those of next
	// when the stored status is from. Otherwise it returns the stored
	// prescription and false.
	CompareAndSwap(ctx context.Context, from logic.Status, next logic.Prescription) (logic.Prescription, bool, error)
	// ListByCustomer returns the customer's prescriptions, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]logic.Prescription, error)
	// ListByPharmacy returns the pharmacy's prescriptions, newest first. An
	// empty status matches every status.
	ListByPharmacy(ctx context.Context, pharmacyID string, status logic.Status) ([]logic.Prescription, error)
}

func notFound(id string) error {
	return medreserve.NewNotFound("prescription:"+id, logic.ErrMsgPrescriptionMissing)
}
