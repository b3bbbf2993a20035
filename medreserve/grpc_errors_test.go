package medreserve

import (
	"errors"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapCommandError_invalidArgument_mapsToGRPCInvalidArgument(t *testing.T) {
	err := MapCommandError(NewInvalidArgument("bad field"))
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected gRPC status error")
	}
	if st.Code() != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", st.Code())
	}
	if st.Message() != "bad field" {
		t.Errorf("expected 'bad field', got %q", st.Message())
	}
}

func TestMapCommandError_insufficientStock_carriesErrorInfo(t *testing.T) {
	err := MapCommandError(NewInsufficientStock("medicine:m1", 4, 5))
	st, _ := status.FromError(err)
	if st.Code() != codes.ResourceExhausted {
		t.Errorf("expected ResourceExhausted, got %v", st.Code())
	}

	var info *errdetails.ErrorInfo
	for _, d := range st.Details() {
		if i, ok := d.(*errdetails.ErrorInfo); ok {
			info = i
		}
	}
	if info == nil {
		t.Fatal("expected ErrorInfo detail")
	}
	if info.Reason != "INSUFFICIENT_STOCK" {
		t.Errorf("expected reason INSUFFICIENT_STOCK, got %q", info.Reason)
	}
	if info.Metadata["resource"] != "medicine:m1" {
		t.Errorf("expected resource metadata, got %v", info.Metadata)
	}
	if ReasonOf(err) != "INSUFFICIENT_STOCK" {
		t.Errorf("ReasonOf = %q", ReasonOf(err))
	}
}

func TestMapCommandError_codes(t *testing.T) {
	tests := []struct {
		err  *CommandError
		want codes.Code
	}{
		{NewNotFound("r", "missing"), codes.NotFound},
		{NewInvalidState("r", "nope"), codes.FailedPrecondition},
		{NewExpired("r", "late"), codes.FailedPrecondition},
		{NewAlreadyTerminal("r", "confirmed"), codes.Aborted},
		{NewForbidden("r", "not yours"), codes.PermissionDenied},
		{NewInvalidFile("file[0]", "bad type"), codes.InvalidArgument},
		{NewInvalidQuantity("m", "negative"), codes.InvalidArgument},
	}
	for _, tt := range tests {
		st, _ := status.FromError(MapCommandError(tt.err))
		if st.Code() != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.err.Code, tt.want, st.Code())
		}
	}
}

func TestMapCommandError_nonCommandError_mapsToInternal(t *testing.T) {
	err := MapCommandError(errors.New("something broke"))
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected gRPC status error")
	}
	if st.Code() != codes.Internal {
		t.Errorf("expected Internal, got %v", st.Code())
	}
	if ReasonOf(err) != "" {
		t.Errorf("expected no reason for internal error, got %q", ReasonOf(err))
	}
}
