package entitlements

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies how a package template may be granted.
type Kind string

const (
	KindPaid      Kind = "paid"
	KindGift      Kind = "gift"
	KindFreeDaily Kind = "free_daily"
)

// FreeWindow is the rolling window gating free-daily claims, measured from
// the createdAt of the previous grant.
const FreeWindow = 24 * time.Hour

// PackageTemplate is a catalog definition of a grantable package.
// Templates are immutable once published.
type PackageTemplate struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Kind         Kind      `json:"kind"`
	PriceCents   int64     `json:"price_cents"`
	DurationDays int       `json:"duration_days"` // 0 means unlimited
	TrafficBytes int64     `json:"traffic_bytes"` // 0 means unbounded
	Renewable    bool      `json:"renewable"`
	Purchasable  bool      `json:"purchasable"`
}

// Duration returns the template's lifetime, or 0 for unlimited templates.
func (t *PackageTemplate) Duration() time.Duration {
	return time.Duration(t.DurationDays) * 24 * time.Hour
}

// Unlimited reports whether the template never expires on its own.
func (t *PackageTemplate) Unlimited() bool { return t.DurationDays <= 0 }

// Entitlement is a user's instance of a package template, bound to one
// endpoint for its entire lifetime. Records are never deleted, only
// superseded by newer grants.
type Entitlement struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TemplateID uuid.UUID  `json:"template_id"`
	EndpointID uuid.UUID  `json:"endpoint_id"`
	Kind       Kind       `json:"kind"`
	Name       string     `json:"name"` // template display name at grant time
	StatID     string     `json:"stat_id"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"` // nil while active/undetermined
	Renewals   int        `json:"renewals"`
}

// Active reports whether the entitlement is usable at the given instant:
// finishedAt unset or still in the future.
func (e *Entitlement) Active(now time.Time) bool {
	return e.FinishedAt == nil || e.FinishedAt.After(now)
}

// InWindow reports whether the entitlement's createdAt falls inside the
// trailing window ending at now. Only a createdAt strictly older than the
// window start is out; the boundary instant still counts as claimed.
func (e *Entitlement) InWindow(now time.Time, window time.Duration) bool {
	return !e.CreatedAt.Before(now.Add(-window))
}

// Endpoint is a selectable network access point. Brand may be empty when the
// endpoint carries no branding; callers fall back to a configured label.
type Endpoint struct {
	ID      uuid.UUID `json:"id"`
	Address string    `json:"address"`
	Port    int       `json:"port"`
	Brand   string    `json:"brand,omitempty"`
}
