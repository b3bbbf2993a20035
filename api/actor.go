package api

import (
	"strings"

	"github.com/benjaminabbitt/medreserve/inventory"
	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription"
	"github.com/benjaminabbitt/medreserve/reservation"
)

// Identity headers set by the upstream gateway after authentication. gRPC
// carries the same keys as metadata.
const (
	HeaderActorID       = "x-actor-id"
	HeaderActorRole     = "x-actor-role"
	HeaderActorPharmacy = "x-actor-pharmacy"
)

// ActorFrom builds the caller from the identity headers. Missing or unknown
// claims leave the actor anonymous, which the managers reject.
func ActorFrom(get func(key string) string) medreserve.Actor {
	return medreserve.Actor{
		ID:         strings.TrimSpace(get(HeaderActorID)),
		Role:       medreserve.ParseRole(get(HeaderActorRole)),
		PharmacyID: strings.TrimSpace(get(HeaderActorPharmacy)),
	}
}

// Services are the core components the transports expose.
type Services struct {
	Inventory     *inventory.Service
	Reservations  *reservation.Manager
	Prescriptions *prescription.Manager
}
