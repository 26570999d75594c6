package pgstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/open-rails/vpnkit/entitlements"
)

const (
	maxAttempts    = 3
	initialBackoff = 50 * time.Millisecond
)

// withRetry runs op up to maxAttempts times, backing off between transient
// failures. Exhausted retries surface as entitlements.ErrStoreUnavailable so
// callers never mistake a flaky store for a domain rejection.
func withRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	backoff := initialBackoff
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = op(ctx)
		if err == nil || !transient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%w: %v", entitlements.ErrStoreUnavailable, err)
}

// transient reports whether the error is worth retrying: connectivity
// problems, serialization failures, and deadlocks. Domain errors and plain
// query failures are not.
func transient(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		// Class 08: connection exceptions.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return false
}
