package medreserve

import (
	"context"
	"time"
)

// CompensationTimeout bounds follow-up writes that run detached from the caller.
const CompensationTimeout = 10 * time.Second

// Detach keeps the values of ctx but drops its cancellation and deadline,
// bounding the result by CompensationTimeout. Steps that must complete once a
// command has committed, or that undo a partial command, run under it.
func Detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), CompensationTimeout)
}
