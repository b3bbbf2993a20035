package medreserve

// RequireExists checks that a field is non-empty (entity exists).
func RequireExists(field, errMsg string) *CommandError {
	if field == "" {
		return NewFailedPrecondition(errMsg)
	}
	return nil
}

// RequireNonEmpty checks that a required input field is set.
func RequireNonEmpty(field, name string) *CommandError {
	if field == "" {
		return NewInvalidArgument(name + " is required")
	}
	return nil
}

// RequirePositive checks that a quantity is greater than zero.
func RequirePositive(value int, resource string) *CommandError {
	if value <= 0 {
		return NewInvalidQuantity(resource, "quantity must be positive")
	}
	return nil
}

// RequireNonNegative checks that a value is zero or greater.
func RequireNonNegative(value int, resource, errMsg string) *CommandError {
	if value < 0 {
		return NewInvalidQuantity(resource, errMsg)
	}
	return nil
}

// RequireNotEmpty checks that a slice has at least one element.
func RequireNotEmpty[T any](items []T, errMsg string) *CommandError {
	if len(items) == 0 {
		return NewInvalidArgument(errMsg)
	}
	return nil
}
