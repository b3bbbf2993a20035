package logic

// Error message constants for the reservation domain.
const (
	ErrMsgItemsRequired      = "Reservation must have at least one item"
	ErrMsgNotOwner           = "Reservation belongs to another customer"
	ErrMsgNotStaff           = "Reservation belongs to another pharmacy"
	ErrMsgHoldExpired        = "Reservation hold has expired"
	ErrMsgReservationMissing = "Reservation not found"
	ErrMsgCustomerOnly       = "Only customers can reserve stock"
)
