package core

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/entitlements"
	memorystore "github.com/open-rails/vpnkit/storage/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc      *Service
	store    *memorystore.Store
	profiles *memorystore.Profiles
	clock    *fakeClock
	paid30   entitlements.PackageTemplate
	free     entitlements.PackageTemplate
	gift     entitlements.PackageTemplate
	endpoint entitlements.Endpoint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock: &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		paid30: entitlements.PackageTemplate{
			ID: uuid.New(), Name: "30 Days", Kind: entitlements.KindPaid,
			PriceCents: 1000, DurationDays: 30, Renewable: true, Purchasable: true,
		},
		free: entitlements.PackageTemplate{
			ID: uuid.New(), Name: "Free Daily", Kind: entitlements.KindFreeDaily,
			DurationDays: 1,
		},
		gift: entitlements.PackageTemplate{
			ID: uuid.New(), Name: "Gift Week", Kind: entitlements.KindGift,
			DurationDays: 7,
		},
		endpoint: entitlements.Endpoint{
			ID: uuid.New(), Address: "tunnel.example.net", Port: 443, Brand: "acme.net",
		},
	}

	catalog := memorystore.NewCatalog(f.paid30, f.free, f.gift)
	f.store = memorystore.NewStore(catalog)
	f.profiles = memorystore.NewProfiles()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	f.svc = New(
		f.store,
		catalog,
		memorystore.NewDirectory(f.endpoint),
		f.profiles,
		WithClock(f.clock.Now),
		WithLogger(log),
	)
	return f
}

func TestPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	f.store.Credit(user, 1500)

	t0 := f.clock.Now()
	e, err := f.svc.Purchase(ctx, user, f.paid30.ID)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if e.StatID == "" {
		t.Error("statId not assigned")
	}
	if e.EndpointID != f.endpoint.ID {
		t.Error("endpoint not bound")
	}
	if e.FinishedAt == nil || !e.FinishedAt.Equal(t0.Add(30*24*time.Hour)) {
		t.Errorf("finishedAt = %v, want %v", e.FinishedAt, t0.Add(30*24*time.Hour))
	}
	if got := f.store.Balance(user); got != 500 {
		t.Errorf("balance after purchase = %d, want 500", got)
	}
}

func TestPurchaseInsufficientFundsIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	f.store.Credit(user, 999)

	_, err := f.svc.Purchase(ctx, user, f.paid30.ID)
	if !errors.Is(err, entitlements.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := f.store.Balance(user); got != 999 {
		t.Errorf("balance changed to %d on failed purchase", got)
	}
	ents, _ := f.store.ListByUser(ctx, user)
	if len(ents) != 0 {
		t.Errorf("failed purchase left %d entitlements", len(ents))
	}
}

func TestPurchaseRejectsNonPaidTemplates(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	f.store.Credit(user, 10000)

	if _, err := f.svc.Purchase(context.Background(), user, f.gift.ID); !errors.Is(err, entitlements.ErrTemplateUnavailable) {
		t.Errorf("gift template: err = %v, want ErrTemplateUnavailable", err)
	}
	if _, err := f.svc.Purchase(context.Background(), user, uuid.New()); !errors.Is(err, entitlements.ErrNotFound) {
		t.Errorf("unknown template: err = %v, want ErrNotFound", err)
	}
}

func TestRenewEarlyExtendsFromOriginalEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	f.store.Credit(user, 1000)

	t0 := f.clock.Now()
	e, err := f.svc.Purchase(ctx, user, f.paid30.ID)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(10 * 24 * time.Hour)
	renewed, err := f.svc.Renew(ctx, user, e.ID)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	want := t0.Add(60 * 24 * time.Hour)
	if renewed.FinishedAt == nil || !renewed.FinishedAt.Equal(want) {
		t.Errorf("finishedAt = %v, want %v (t0+60d)", renewed.FinishedAt, want)
	}
	if renewed.Renewals != 1 {
		t.Errorf("renewals = %d, want 1", renewed.Renewals)
	}
}

func TestRenewExpiredExtendsFromNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	f.store.Credit(user, 1000)

	e, err := f.svc.Purchase(ctx, user, f.paid30.ID)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(40 * 24 * time.Hour) // 10 days past expiry
	now := f.clock.Now()
	renewed, err := f.svc.Renew(ctx, user, e.ID)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	want := now.Add(30 * 24 * time.Hour)
	if renewed.FinishedAt == nil || !renewed.FinishedAt.Equal(want) {
		t.Errorf("finishedAt = %v, want %v (now+30d)", renewed.FinishedAt, want)
	}
}

func TestRenewFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	f.store.Credit(owner, 1000)

	e, err := f.svc.Purchase(ctx, owner, f.paid30.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Renew(ctx, uuid.New(), e.ID); !errors.Is(err, entitlements.ErrNotOwned) {
		t.Errorf("foreign user: err = %v, want ErrNotOwned", err)
	}
	if _, err := f.svc.Renew(ctx, owner, uuid.New()); !errors.Is(err, entitlements.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}

	free, err := f.svc.ClaimFreeDaily(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Renew(ctx, owner, free.ID); !errors.Is(err, entitlements.ErrNotRenewable) {
		t.Errorf("free package: err = %v, want ErrNotRenewable", err)
	}
}

func TestClaimFreeDailyRollingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	e1, err := f.svc.ClaimFreeDaily(ctx, user)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// Still active inside the window: the same entitlement comes back.
	f.clock.Advance(2 * time.Hour)
	again, err := f.svc.ClaimFreeDaily(ctx, user)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again.ID != e1.ID {
		t.Errorf("in-window claim returned %v, want original %v", again.ID, e1.ID)
	}

	// Window rolled over (and the grant expired on its own): fresh grant.
	f.clock.Advance(23 * time.Hour) // t0+25h
	if _, err := f.svc.ExpireSweep(ctx, f.clock.Now()); err != nil {
		t.Fatal(err)
	}
	e2, err := f.svc.ClaimFreeDaily(ctx, user)
	if err != nil {
		t.Fatalf("post-window claim: %v", err)
	}
	if e2.ID == e1.ID {
		t.Error("expected a new grant after the window rolled over")
	}

	ents, _ := f.store.ListByUser(ctx, user)
	if len(ents) != 2 {
		t.Errorf("entitlement count = %d, want 2", len(ents))
	}
}

func TestClaimFreeDailyBlockedWhileFinishedInWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	// A free grant finished early (e.g., swept after a shortened run) but
	// still inside 24h of its createdAt blocks re-claims until rollover.
	now := f.clock.Now()
	finished := now.Add(-time.Hour)
	err := f.store.InsertFreeDaily(ctx, &entitlements.Entitlement{
		ID: uuid.New(), UserID: user, TemplateID: f.free.ID, EndpointID: f.endpoint.ID,
		Kind: entitlements.KindFreeDaily, Name: f.free.Name, StatID: "stat-early",
		CreatedAt: now.Add(-3 * time.Hour), FinishedAt: &finished,
	}, entitlements.FreeWindow)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.ClaimFreeDaily(ctx, user); !errors.Is(err, entitlements.ErrAlreadyClaimed) {
		t.Fatalf("err = %v, want ErrAlreadyClaimed", err)
	}

	// After the window rolls over from createdAt, claims work again.
	f.clock.Advance(22 * time.Hour)
	if _, err := f.svc.ClaimFreeDaily(ctx, user); err != nil {
		t.Fatalf("post-rollover claim: %v", err)
	}
}

func TestClaimFreeDailyConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	const claims = 32
	ids := make(chan uuid.UUID, claims)
	var wg sync.WaitGroup
	for i := 0; i < claims; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := f.svc.ClaimFreeDaily(ctx, user)
			if err != nil {
				t.Errorf("concurrent claim: %v", err)
				return
			}
			ids <- e.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uuid.UUID]bool)
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Errorf("concurrent claims produced %d distinct entitlements, want 1", len(seen))
	}
	ents, _ := f.store.ListByUser(ctx, user)
	if len(ents) != 1 {
		t.Errorf("store holds %d free entitlements, want 1", len(ents))
	}
}

func TestClaimGift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	if _, err := f.svc.ClaimGift(ctx, user, f.gift.ID); !errors.Is(err, entitlements.ErrGiftNotEnabled) {
		t.Fatalf("before enable: err = %v, want ErrGiftNotEnabled", err)
	}

	if err := f.svc.EnableGift(ctx, user); err != nil {
		t.Fatal(err)
	}
	e, err := f.svc.ClaimGift(ctx, user, f.gift.ID)
	if err != nil {
		t.Fatalf("ClaimGift: %v", err)
	}
	want := f.clock.Now().Add(7 * 24 * time.Hour)
	if e.FinishedAt == nil || !e.FinishedAt.Equal(want) {
		t.Errorf("finishedAt = %v, want %v", e.FinishedAt, want)
	}

	if _, err := f.svc.ClaimGift(ctx, user, f.gift.ID); !errors.Is(err, entitlements.ErrAlreadyGranted) {
		t.Errorf("repeat claim: err = %v, want ErrAlreadyGranted", err)
	}
	if _, err := f.svc.ClaimGift(ctx, user, f.paid30.ID); !errors.Is(err, entitlements.ErrTemplateUnavailable) {
		t.Errorf("paid template: err = %v, want ErrTemplateUnavailable", err)
	}
}

func TestExpireSweepIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	if _, err := f.svc.ClaimFreeDaily(ctx, user); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(25 * time.Hour)
	now := f.clock.Now()
	n, err := f.svc.ExpireSweep(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("first sweep: n=%d err=%v, want 1 nil", n, err)
	}

	ents, _ := f.store.ListByUser(ctx, user)
	if ents[0].FinishedAt == nil || !ents[0].FinishedAt.Equal(now) {
		t.Errorf("finishedAt = %v, want %v", ents[0].FinishedAt, now)
	}

	f.clock.Advance(time.Hour)
	n, err = f.svc.ExpireSweep(ctx, f.clock.Now())
	if err != nil || n != 0 {
		t.Errorf("second sweep: n=%d err=%v, want 0 nil", n, err)
	}
	ents, _ = f.store.ListByUser(ctx, user)
	if !ents[0].FinishedAt.Equal(now) {
		t.Error("second sweep moved an already-set finishedAt")
	}
}

func TestListUserEntitlementsIncludesLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	f.store.Credit(user, 1000)

	e, err := f.svc.Purchase(ctx, user, f.paid30.ID)
	if err != nil {
		t.Fatal(err)
	}

	out, err := f.svc.ListUserEntitlements(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if !out[0].Active {
		t.Error("fresh purchase reported inactive")
	}

	u, err := url.Parse(out[0].Link)
	if err != nil {
		t.Fatalf("link does not parse: %v", err)
	}
	if u.User.Username() != e.StatID {
		t.Errorf("link statId = %q, want %q", u.User.Username(), e.StatID)
	}
	if u.Fragment != "30 Days | acme.net" {
		t.Errorf("link label = %q", u.Fragment)
	}
}

func TestStatIDsNeverReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		user := uuid.New()
		f.store.Credit(user, 1000)
		e, err := f.svc.Purchase(ctx, user, f.paid30.ID)
		if err != nil {
			t.Fatal(err)
		}
		if seen[e.StatID] {
			t.Fatalf("statId %q reused", e.StatID)
		}
		seen[e.StatID] = true
	}
}
