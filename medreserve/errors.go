// Package medreserve holds the pieces shared by every bounded context: typed
// command errors, actors, validation helpers, identities and the gRPC bootstrap.
package medreserve

import (
	"errors"
	"fmt"
)

// StatusCode represents the category of a command rejection.
type StatusCode int

const (
	StatusInvalidArgument StatusCode = iota
	StatusFailedPrecondition
	StatusNotFound
	StatusInsufficientStock
	StatusInvalidState
	StatusAlreadyTerminal
	StatusExpired
	StatusForbidden
	StatusInvalidFile
	StatusInvalidQuantity
)

func (s StatusCode) String() string {
	switch s {
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusFailedPrecondition:
		return "FAILED_PRECONDITION"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusInsufficientStock:
		return "INSUFFICIENT_STOCK"
	case StatusInvalidState:
		return "INVALID_STATE"
	case StatusAlreadyTerminal:
		return "ALREADY_TERMINAL"
	case StatusExpired:
		return "EXPIRED"
	case StatusForbidden:
		return "FORBIDDEN"
	case StatusInvalidFile:
		return "INVALID_FILE"
	case StatusInvalidQuantity:
		return "INVALID_QUANTITY"
	default:
		return "UNKNOWN"
	}
}

// CommandError is returned when a command is rejected by business logic.
// Resource names the entity or line item the rejection is about.
type CommandError struct {
	Code     StatusCode
	Message  string
	Resource string
}

func (e *CommandError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s", e.Resource, e.Message)
	}
	return e.Message
}

// Is matches another CommandError by code, so sentinels like ErrExpired can be
// used with errors.Is regardless of message.
func (e *CommandError) Is(target error) bool {
	var t *CommandError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidArgument    = &CommandError{Code: StatusInvalidArgument}
	ErrFailedPrecondition = &CommandError{Code: StatusFailedPrecondition}
	ErrNotFound           = &CommandError{Code: StatusNotFound}
	ErrInsufficientStock  = &CommandError{Code: StatusInsufficientStock}
	ErrInvalidState       = &CommandError{Code: StatusInvalidState}
	ErrAlreadyTerminal    = &CommandError{Code: StatusAlreadyTerminal}
	ErrExpired            = &CommandError{Code: StatusExpired}
	ErrForbidden          = &CommandError{Code: StatusForbidden}
	ErrInvalidFile        = &CommandError{Code: StatusInvalidFile}
	ErrInvalidQuantity    = &CommandError{Code: StatusInvalidQuantity}
)

// NewInvalidArgument creates a CommandError for invalid input.
func NewInvalidArgument(message string) *CommandError {
	return &CommandError{Code: StatusInvalidArgument, Message: message}
}

// NewFailedPrecondition creates a CommandError for violated preconditions.
func NewFailedPrecondition(message string) *CommandError {
	return &CommandError{Code: StatusFailedPrecondition, Message: message}
}

// NewFailedPreconditionf creates a CommandError with a formatted message.
func NewFailedPreconditionf(format string, args ...interface{}) *CommandError {
	return &CommandError{Code: StatusFailedPrecondition, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound reports a missing entity.
func NewNotFound(resource, message string) *CommandError {
	return &CommandError{Code: StatusNotFound, Message: message, Resource: resource}
}

// NewInsufficientStock reports a reserve that would exceed the available headroom.
func NewInsufficientStock(resource string, available, requested int) *CommandError {
	return &CommandError{
		Code:     StatusInsufficientStock,
		Message:  fmt.Sprintf("insufficient stock: available %d, requested %d", available, requested),
		Resource: resource,
	}
}

// NewInvalidState reports a transition the current state does not permit.
func NewInvalidState(resource, message string) *CommandError {
	return &CommandError{Code: StatusInvalidState, Message: message, Resource: resource}
}

// NewAlreadyTerminal reports a transition attempted after a terminal state was reached.
func NewAlreadyTerminal(resource, status string) *CommandError {
	return &CommandError{
		Code:     StatusAlreadyTerminal,
		Message:  fmt.Sprintf("already %s", status),
		Resource: resource,
	}
}

// NewExpired reports an action attempted past its time bound.
func NewExpired(resource, message string) *CommandError {
	return &CommandError{Code: StatusExpired, Message: message, Resource: resource}
}

// NewForbidden reports an actor that does not own the resource or lacks the role.
func NewForbidden(resource, message string) *CommandError {
	return &CommandError{Code: StatusForbidden, Message: message, Resource: resource}
}

// NewInvalidFile reports an upload rejected by count, type or size rules.
func NewInvalidFile(resource, message string) *CommandError {
	return &CommandError{Code: StatusInvalidFile, Message: message, Resource: resource}
}

// NewInvalidQuantity reports a quantity, price or threshold that breaks ledger rules.
func NewInvalidQuantity(resource, message string) *CommandError {
	return &CommandError{Code: StatusInvalidQuantity, Message: message, Resource: resource}
}

// AsCommandError extracts a CommandError from an error chain.
func AsCommandError(err error) *CommandError {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return nil
}

// CodeOf returns the command status code of err, and false for infrastructure errors.
func CodeOf(err error) (StatusCode, bool) {
	if cmdErr := AsCommandError(err); cmdErr != nil {
		return cmdErr.Code, true
	}
	return 0, false
}

// IsTransitionRejected reports whether err is a lost or illegal state transition.
func IsTransitionRejected(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrAlreadyTerminal)
}
