// Package memorystore provides mutex-guarded in-memory implementations of
// the engine's collaborators. It backs tests and single-node runs; the
// conditional-insert guarantees match the postgres store.
package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
)

// Store is an in-memory entitlement store. All conditional writes run under
// one mutex, which gives the same at-most-once semantics the postgres store
// gets from advisory locks.
type Store struct {
	mu       sync.Mutex
	ents     []entitlements.Entitlement
	balances map[uuid.UUID]int64
	catalog  *Catalog // for computed expiry in MarkExpired
}

func NewStore(catalog *Catalog) *Store {
	return &Store{
		balances: make(map[uuid.UUID]int64),
		catalog:  catalog,
	}
}

// Credit adds to a user's balance (test setup and top-ups).
func (s *Store) Credit(userID uuid.UUID, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += cents
}

// Balance returns the user's current balance.
func (s *Store) Balance(userID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*entitlements.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ents {
		if s.ents[i].ID == id {
			e := s.ents[i]
			return &e, nil
		}
	}
	return nil, entitlements.ErrNotFound
}

func (s *Store) FindLatestByKind(_ context.Context, userID uuid.UUID, kind entitlements.Kind) (*entitlements.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestByKindLocked(userID, kind), nil
}

func (s *Store) latestByKindLocked(userID uuid.UUID, kind entitlements.Kind) *entitlements.Entitlement {
	var latest *entitlements.Entitlement
	for i := range s.ents {
		e := &s.ents[i]
		if e.UserID != userID || e.Kind != kind {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil
	}
	cp := *latest
	return &cp
}

func (s *Store) InsertPaid(_ context.Context, e *entitlements.Entitlement, priceCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[e.UserID] < priceCents {
		return entitlements.ErrInsufficientFunds
	}
	s.balances[e.UserID] -= priceCents
	s.ents = append(s.ents, *e)
	return nil
}

func (s *Store) InsertFreeDaily(_ context.Context, e *entitlements.Entitlement, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev := s.latestByKindLocked(e.UserID, entitlements.KindFreeDaily); prev != nil && prev.InWindow(e.CreatedAt, window) {
		return entitlements.ErrAlreadyClaimed
	}
	s.ents = append(s.ents, *e)
	return nil
}

func (s *Store) InsertGift(_ context.Context, e *entitlements.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ents {
		if s.ents[i].UserID == e.UserID && s.ents[i].TemplateID == e.TemplateID && s.ents[i].Kind == entitlements.KindGift {
			return entitlements.ErrAlreadyGranted
		}
	}
	s.ents = append(s.ents, *e)
	return nil
}

func (s *Store) Renew(_ context.Context, id uuid.UUID, finishedAt time.Time) (*entitlements.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ents {
		if s.ents[i].ID == id {
			f := finishedAt
			s.ents[i].FinishedAt = &f
			s.ents[i].Renewals++
			e := s.ents[i]
			return &e, nil
		}
	}
	return nil, entitlements.ErrNotFound
}

func (s *Store) ListByUser(_ context.Context, userID uuid.UUID) ([]entitlements.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entitlements.Entitlement
	for i := range s.ents {
		if s.ents[i].UserID == userID {
			out = append(out, s.ents[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.ents {
		e := &s.ents[i]
		if e.FinishedAt != nil {
			continue
		}
		tpl := s.catalog.get(e.TemplateID)
		if tpl == nil || tpl.Unlimited() {
			continue
		}
		if !e.CreatedAt.Add(tpl.Duration()).After(now) {
			f := now
			e.FinishedAt = &f
			n++
		}
	}
	return n, nil
}
