package core

import (
	"context"
)

// GrantEventLogger records entitlement lifecycle events to an external sink
// (e.g., ClickHouse). Implementations should be non-blocking and best-effort;
// the engine never fails an operation on a sink error.
type GrantEventLogger interface {
	LogGrant(ctx context.Context, userID string, entitlementID string, op string) error
}
