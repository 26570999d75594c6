// Package core implements the entitlement lifecycle engine: grant
// eligibility, renewal, free/gift claims, and expiry bookkeeping. The engine
// never authenticates callers; user identity arrives resolved from the access
// layer.
package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/entitlements"
	"github.com/open-rails/vpnkit/statid"
)

// Store persists entitlement records. Conditional inserts must be atomic with
// respect to concurrent calls for the same user: the engine relies on them for
// its at-most-once grant guarantees.
type Store interface {
	// Get returns the entitlement or entitlements.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*entitlements.Entitlement, error)
	// FindLatestByKind returns the user's most recent entitlement of the
	// given kind, or nil when none exists.
	FindLatestByKind(ctx context.Context, userID uuid.UUID, kind entitlements.Kind) (*entitlements.Entitlement, error)
	// InsertPaid debits priceCents from the user's balance and inserts the
	// entitlement in a single transaction. Returns
	// entitlements.ErrInsufficientFunds without side effects when the
	// balance does not cover the price.
	InsertPaid(ctx context.Context, e *entitlements.Entitlement, priceCents int64) error
	// InsertFreeDaily inserts the entitlement unless the user already has a
	// free-daily entitlement created inside the trailing window; in that
	// case it returns entitlements.ErrAlreadyClaimed and writes nothing.
	InsertFreeDaily(ctx context.Context, e *entitlements.Entitlement, window time.Duration) error
	// InsertGift inserts the entitlement unless the user already holds a
	// gift entitlement for the same template
	// (entitlements.ErrAlreadyGranted).
	InsertGift(ctx context.Context, e *entitlements.Entitlement) error
	// Renew sets finishedAt and increments the renewal counter, returning
	// the updated record.
	Renew(ctx context.Context, id uuid.UUID, finishedAt time.Time) (*entitlements.Entitlement, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entitlements.Entitlement, error)
	// MarkExpired sets finishedAt = now on every entitlement whose computed
	// expiry has passed and whose finishedAt is still unset. It must never
	// touch rows already marked finished.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// Catalog resolves package templates. Lookups are pure reads.
type Catalog interface {
	Get(ctx context.Context, id uuid.UUID) (*entitlements.PackageTemplate, error)
	FreeDaily(ctx context.Context) (*entitlements.PackageTemplate, error)
	ListPurchasable(ctx context.Context) ([]entitlements.PackageTemplate, error)
	ListGift(ctx context.Context) ([]entitlements.PackageTemplate, error)
}

// Directory resolves and assigns network endpoints. The assignment policy
// behind Select is opaque to the engine.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*entitlements.Endpoint, error)
	Select(ctx context.Context, templateID uuid.UUID) (*entitlements.Endpoint, error)
}

// Profiles exposes the per-user gift eligibility flag.
type Profiles interface {
	GiftEnabled(ctx context.Context, userID uuid.UUID) (bool, error)
	EnableGift(ctx context.Context, userID uuid.UUID) error
}

// Service is the lifecycle engine. All dependencies are passed explicitly at
// construction; there is no global state.
type Service struct {
	store    Store
	catalog  Catalog
	dir      Directory
	profiles Profiles
	events   GrantEventLogger
	log      logrus.FieldLogger
	now      func() time.Time
	newStat  func() string
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger replaces the default logrus logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

// WithEventLogger attaches a best-effort grant event sink.
func WithEventLogger(ev GrantEventLogger) Option { return func(s *Service) { s.events = ev } }

// WithClock overrides the engine clock (tests).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithStatIDs overrides statId generation (tests).
func WithStatIDs(gen func() string) Option { return func(s *Service) { s.newStat = gen } }

func New(store Store, catalog Catalog, dir Directory, profiles Profiles, opts ...Option) *Service {
	s := &Service{
		store:    store,
		catalog:  catalog,
		dir:      dir,
		profiles: profiles,
		log:      logrus.StandardLogger(),
		now:      time.Now,
		newStat:  statid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newGrant assembles an entitlement record for a fresh grant. The statId and
// endpoint binding are fixed here for the record's entire lifetime.
func (s *Service) newGrant(userID uuid.UUID, tpl *entitlements.PackageTemplate, ep *entitlements.Endpoint, now time.Time, finishedAt *time.Time) *entitlements.Entitlement {
	return &entitlements.Entitlement{
		ID:         uuid.New(),
		UserID:     userID,
		TemplateID: tpl.ID,
		EndpointID: ep.ID,
		Kind:       tpl.Kind,
		Name:       tpl.Name,
		StatID:     s.newStat(),
		CreatedAt:  now,
		FinishedAt: finishedAt,
	}
}

func (s *Service) audit(ctx context.Context, e *entitlements.Entitlement, op string) {
	if s.events == nil {
		return
	}
	if err := s.events.LogGrant(ctx, e.UserID.String(), e.ID.String(), op); err != nil {
		s.log.WithError(err).WithField("op", op).Debug("grant event sink failed")
	}
}
