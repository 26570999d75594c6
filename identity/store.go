// Package identity provides minimal profile lookups/mutations against the
// profiles table: gift eligibility and balances. Authentication itself lives
// in the access layer, not here.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Profile is the engine-facing view of a user record.
type Profile struct {
	ID           uuid.UUID
	GiftEnabled  bool
	BalanceCents int64
}

// Store provides profile access over pgx.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "vpn"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) table() string { return s.schema + ".profiles" }

// GetByID returns the profile, or nil when none exists.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	if s.pg == nil || id == uuid.Nil {
		return nil, nil
	}
	var p Profile
	err := s.pg.QueryRow(ctx,
		`SELECT id, gift_enabled, balance_cents FROM `+s.table()+` WHERE id=$1 LIMIT 1`, id).
		Scan(&p.ID, &p.GiftEnabled, &p.BalanceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GiftEnabled reports the gift flag; a missing profile reads as not enabled.
func (s *Store) GiftEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	p, err := s.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return p != nil && p.GiftEnabled, nil
}

// EnableGift flips the gift flag, creating the profile row if needed.
func (s *Store) EnableGift(ctx context.Context, userID uuid.UUID) error {
	if s.pg == nil || userID == uuid.Nil {
		return nil
	}
	_, err := s.pg.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, gift_enabled) VALUES ($1, TRUE)
		 ON CONFLICT (id) DO UPDATE SET gift_enabled = TRUE, updated_at = NOW()`, userID)
	return err
}

// Credit adds to a user's balance, creating the profile row if needed.
func (s *Store) Credit(ctx context.Context, userID uuid.UUID, cents int64) error {
	if s.pg == nil || userID == uuid.Nil || cents <= 0 {
		return nil
	}
	_, err := s.pg.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, balance_cents) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE
		 SET balance_cents = `+s.table()+`.balance_cents + EXCLUDED.balance_cents,
		     updated_at = NOW()`, userID, cents)
	return err
}
