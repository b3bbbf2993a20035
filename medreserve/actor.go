package medreserve

import "strings"

// Role is the authenticated role supplied by the auth collaborator.
type Role string

const (
	RoleCustomer Role = "customer"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

// ParseRole normalizes a role claim; unknown claims yield "".
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCustomer:
		return RoleCustomer
	case RolePharmacy:
		return RolePharmacy
	case RoleAdmin:
		return RoleAdmin
	default:
		return ""
	}
}

// Actor is the caller of a core operation. Role claims are trusted; ownership
// is enforced by the managers. PharmacyID is set for pharmacy staff.
type Actor struct {
	ID         string
	Role       Role
	PharmacyID string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) IsCustomer() bool { return a.Role == RoleCustomer }

// Owns reports whether the actor is the owning customer of a resource.
func (a Actor) Owns(customerID string) bool {
	return a.ID != "" && a.ID == customerID
}

// StaffOf reports whether the actor may act for the given pharmacy.
func (a Actor) StaffOf(pharmacyID string) bool {
	if a.IsAdmin() {
		return true
	}
	return a.Role == RolePharmacy && a.PharmacyID != "" && a.PharmacyID == pharmacyID
}

// RequireActor rejects anonymous or role-less callers.
func RequireActor(a Actor) *CommandError {
	if a.ID == "" || a.Role == "" {
		return NewForbidden("actor", "authenticated actor required")
	}
	return nil
}

// RequireRole rejects actors whose role is not one of roles.
func RequireRole(a Actor, roles ...Role) *CommandError {
	if err := RequireActor(a); err != nil {
		return err
	}
	for _, r := range roles {
		if a.Role == r {
			return nil
		}
	}
	return NewForbidden("actor:"+a.ID, "role "+string(a.Role)+" not permitted")
}

// RequireStaffOf rejects actors that cannot act for pharmacyID.
func RequireStaffOf(a Actor, pharmacyID string) *CommandError {
	if err := RequireActor(a); err != nil {
		return err
	}
	if !a.StaffOf(pharmacyID) {
		return NewForbidden("pharmacy:"+pharmacyID, "actor is not staff of this pharmacy")
	}
	return nil
}
