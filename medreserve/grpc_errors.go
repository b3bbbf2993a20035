package medreserve

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is the ErrorInfo domain attached to gRPC statuses.
const ErrorDomain = "medreserve"

// GRPCCode returns the gRPC code a command status maps to.
func GRPCCode(code StatusCode) codes.Code {
	switch code {
	case StatusInvalidArgument, StatusInvalidFile, StatusInvalidQuantity:
		return codes.InvalidArgument
	case StatusNotFound:
		return codes.NotFound
	case StatusInsufficientStock:
		return codes.ResourceExhausted
	case StatusFailedPrecondition, StatusInvalidState, StatusExpired:
		return codes.FailedPrecondition
	case StatusAlreadyTerminal:
		return codes.Aborted
	case StatusForbidden:
		return codes.PermissionDenied
	default:
		return codes.Unknown
	}
}

// MapCommandError converts a CommandError to a gRPC status error.
// Non-CommandError values are wrapped as Internal.
//
// The status carries an ErrorInfo detail whose reason is the command status
// name and whose metadata names the offending resource.
func MapCommandError(err error) error {
	cmdErr := AsCommandError(err)
	if cmdErr == nil {
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}

	st := status.New(GRPCCode(cmdErr.Code), cmdErr.Error())
	info := &errdetails.ErrorInfo{
		Reason: cmdErr.Code.String(),
		Domain: ErrorDomain,
	}
	if cmdErr.Resource != "" {
		info.Metadata = map[string]string{"resource": cmdErr.Resource}
	}
	if detailed, derr := st.WithDetails(info); derr == nil {
		st = detailed
	}
	return st.Err()
}

// ReasonOf extracts the command status name from a gRPC status error, or "".
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == ErrorDomain {
			return info.Reason
		}
	}
	return ""
}
