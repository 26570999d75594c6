package core

import (
	"context"
	"time"
)

// ExpireSweep marks every entitlement whose computed expiry has passed as
// finished. It only ever transitions active records to expired and skips rows
// already marked, so it is idempotent and safe to run concurrently with
// grants and renewals.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.MarkExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("expired", n).Info("expiry sweep finished")
	}
	return n, nil
}
