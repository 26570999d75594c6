package memorystore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
)

func freeEnt(user uuid.UUID, tpl entitlements.PackageTemplate, created time.Time) *entitlements.Entitlement {
	return &entitlements.Entitlement{
		ID: uuid.New(), UserID: user, TemplateID: tpl.ID, EndpointID: uuid.New(),
		Kind: entitlements.KindFreeDaily, Name: tpl.Name,
		StatID: uuid.NewString(), CreatedAt: created,
	}
}

func TestInsertFreeDailyAtMostOncePerWindow(t *testing.T) {
	tpl := entitlements.PackageTemplate{ID: uuid.New(), Name: "Free Daily", Kind: entitlements.KindFreeDaily, DurationDays: 1}
	s := NewStore(NewCatalog(tpl))
	user := uuid.New()
	now := time.Now()

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.InsertFreeDaily(context.Background(), freeEnt(user, tpl, now), entitlements.FreeWindow)
		}(i)
	}
	wg.Wait()

	inserted := 0
	for _, err := range results {
		if err == nil {
			inserted++
		} else if err != entitlements.ErrAlreadyClaimed {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inserted != 1 {
		t.Errorf("%d inserts succeeded, want exactly 1", inserted)
	}
}

func TestInsertGiftOncePerTemplate(t *testing.T) {
	tpl := entitlements.PackageTemplate{ID: uuid.New(), Name: "Gift", Kind: entitlements.KindGift, DurationDays: 7}
	s := NewStore(NewCatalog(tpl))
	user := uuid.New()

	e := freeEnt(user, tpl, time.Now())
	e.Kind = entitlements.KindGift
	if err := s.InsertGift(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	dup := freeEnt(user, tpl, time.Now())
	dup.Kind = entitlements.KindGift
	if err := s.InsertGift(context.Background(), dup); err != entitlements.ErrAlreadyGranted {
		t.Fatalf("duplicate gift insert: err = %v, want ErrAlreadyGranted", err)
	}
}

func TestMarkExpiredSkipsUnlimitedAndFinished(t *testing.T) {
	limited := entitlements.PackageTemplate{ID: uuid.New(), Name: "Free Daily", Kind: entitlements.KindFreeDaily, DurationDays: 1}
	unlimited := entitlements.PackageTemplate{ID: uuid.New(), Name: "Forever", Kind: entitlements.KindPaid}
	s := NewStore(NewCatalog(limited, unlimited))
	user := uuid.New()
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := s.InsertFreeDaily(ctx, freeEnt(user, limited, old), entitlements.FreeWindow); err != nil {
		t.Fatal(err)
	}
	forever := freeEnt(user, unlimited, old)
	forever.Kind = entitlements.KindPaid
	if err := s.InsertPaid(ctx, forever, 0); err != nil {
		t.Fatal(err)
	}

	n, err := s.MarkExpired(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expired %d rows, want 1 (unlimited template must be skipped)", n)
	}

	n, err = s.MarkExpired(ctx, time.Now())
	if err != nil || n != 0 {
		t.Errorf("second sweep: n=%d err=%v, want 0 nil", n, err)
	}
}
