package medreserve

import (
	"context"
	"testing"
	"time"
)

type ctxKey struct{}

func TestDetach_SurvivesCallerCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req-1"))
	cancel()

	ctx, stop := Detach(parent)
	defer stop()

	if err := ctx.Err(); err != nil {
		t.Fatalf("detached context inherited cancellation: %v", err)
	}
	if got := ctx.Value(ctxKey{}); got != "req-1" {
		t.Errorf("expected values to be kept, got %v", got)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > CompensationTimeout {
		t.Errorf("unexpected deadline in %v", remaining)
	}
}
