package medreserve

import "github.com/google/uuid"

// InventoryNamespace is the UUID namespace for deterministic inventory record ids.
var InventoryNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ComputeRoot derives a deterministic UUID v5 from a domain and business key.
func ComputeRoot(domain, businessKey string) uuid.UUID {
	seed := "medreserve" + domain + businessKey
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}

// InventoryRoot generates the id of the inventory record for a
// (pharmacy, medicine) pair. The same pair always maps to the same id.
func InventoryRoot(pharmacyID, medicineID string) uuid.UUID {
	return uuid.NewSHA1(InventoryNamespace, []byte(pharmacyID+"/"+medicineID))
}

// NewID returns a fresh random id for reservations and prescriptions.
func NewID() string {
	return uuid.NewString()
}
