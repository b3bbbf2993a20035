// Package logic holds the reservation state machine and line item rules.
package logic

import (
	"fmt"

	"github.com/benjaminabbitt/medreserve/medreserve"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusPickedUp  Status = "picked_up"
)

// Action is a lifecycle command applied to a reservation.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionExpire  Action = "expire"
	ActionPickup  Action = "pickup"
)

// transitions enumerates every legal (state, action) pair.
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionConfirm: StatusConfirmed,
		ActionCancel:  StatusCancelled,
		ActionExpire:  StatusExpired,
	},
	StatusConfirmed: {
		ActionPickup: StatusPickedUp,
	},
}

// ParseStatus validates a stored or transported status string.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusExpired, StatusPickedUp:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether the reservation no longer holds stock.
// Confirmed counts as terminal for the pending race even though pickup may follow.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Next returns the state reached by applying action to from.
func Next(from Status, action Action) (Status, bool) {
	to, ok := transitions[from][action]
	return to, ok
}

// Reject builds the error for an illegal transition. Actions attempted on a
// reservation that already left pending report AlreadyTerminal, except pickup
// on a pending reservation which is simply out of order.
func Reject(resource string, from Status, action Action) *medreserve.CommandError {
	if from.IsTerminal() {
		return medreserve.NewAlreadyTerminal(resource, string(from))
	}
	return medreserve.NewInvalidState(resource, fmt.Sprintf("cannot %s a %s reservation", action, from))
}
