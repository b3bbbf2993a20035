package logic

// Error message constants for the prescription domain.
const (
	ErrMsgPrescriptionMissing = "Prescription not found"
	ErrMsgNotOwner            = "Prescription belongs to another customer"
	ErrMsgNotReviewer         = "Prescription is claimed by another reviewer"
	ErrMsgQuoteItemsRequired  = "Quote must have at least one item"
	ErrMsgQuoteExpired        = "Quote reservation window has passed"
	ErrMsgQuoteExpiryPast     = "Quote reservation window must end in the future"
	ErrMsgReasonRequired      = "Rejection reason is required"
	ErrMsgPriceNegative       = "Price cannot be negative"
	ErrMsgCurrencyInvalid     = "Currency must be a three letter code"
	ErrMsgFileCount           = "Between 1 and 3 files are required"
	ErrMsgFileEmpty           = "File is empty"
	ErrMsgFileTooLarge        = "File exceeds the size limit"
	ErrMsgFileType            = "Only JPEG, PNG and PDF files are accepted"
	ErrMsgFileContent         = "File content does not match its declared type"
)
