package odoo

import (
	"context"
	"time"
)

// retryBackoff is the pause before the single retry of a transient failure.
const retryBackoff = 250 * time.Millisecond

// RetryTransient runs fn, and if it fails with a retryable error, runs it
// once more after a short backoff. Authentication and business-rule errors
// are surfaced immediately. The backoff respects ctx cancellation.
func RetryTransient(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !IsRetryable(err) {
		return err
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return err
	}

	return fn()
}
