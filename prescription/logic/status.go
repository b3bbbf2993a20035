// Package logic holds the prescription state machine, quote rules and upload
// validation.
package logic

import (
	"fmt"

	"github.com/benjaminabbitt/medreserve/medreserve"
)

// Status is the lifecycle state of a prescription.
type Status string

const (
	StatusSubmitted         Status = "submitted"
	StatusUnderReview       Status = "under_review"
	StatusApprovedWithQuote Status = "approved_with_quote"
	StatusRejected          Status = "rejected"
	StatusCancelled         Status = "cancelled"
	StatusConsumed          Status = "consumed"
)

// Action is a lifecycle command applied to a prescription.
type Action string

const (
	ActionReview  Action = "review"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
	ActionConsume Action = "consume"
	// ActionRestore undoes a consume whose reservation could not be made.
	ActionRestore Action = "restore"
)

var transitions = map[Status]map[Action]Status{
	StatusSubmitted: {
		ActionReview: StatusUnderReview,
		ActionCancel: StatusCancelled,
	},
	StatusUnderReview: {
		ActionApprove: StatusApprovedWithQuote,
		ActionReject:  StatusRejected,
		ActionCancel:  StatusCancelled,
	},
	StatusApprovedWithQuote: {
		ActionConsume: StatusConsumed,
	},
	StatusConsumed: {
		ActionRestore: StatusApprovedWithQuote,
	},
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusSubmitted, StatusUnderReview, StatusApprovedWithQuote, StatusRejected, StatusCancelled, StatusConsumed:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no customer or pharmacist action remains.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusConsumed
}

// Next returns the state reached by applying action to from.
func Next(from Status, action Action) (Status, bool) {
	to, ok := transitions[from][action]
	return to, ok
}

// Reject builds the error for an illegal transition.
func Reject(resource string, from Status, action Action) *medreserve.CommandError {
	return medreserve.NewInvalidState(resource, fmt.Sprintf("cannot %s a %s prescription", action, from))
}
