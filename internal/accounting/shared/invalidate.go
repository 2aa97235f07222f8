package shared

import (
	"context"
	"time"
)

// Invalidator drops derived reports once a company's posted state changes.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID int64) error
}

const (
	invalidateAttempts = 3
	invalidateTimeout  = 2 * time.Second
)

var invalidateBackoff = 50 * time.Millisecond

// InvalidateCommitted runs inv after a committed change. Cancellation of ctx
// is ignored since the change is already durable; failures are retried and
// the last error is returned.
func InvalidateCommitted(ctx context.Context, inv Invalidator, companyID int64) error {
	if inv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt < invalidateAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(time.Duration(attempt) * invalidateBackoff):
			}
		}
		if err = inv.Invalidate(ctx, companyID); err == nil {
			return nil
		}
	}
	return err
}
