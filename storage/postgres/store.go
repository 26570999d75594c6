// Package pgstore implements the engine's storage contracts on PostgreSQL
// via pgx. Conditional grants serialize per user with transaction-scoped
// advisory locks, so concurrent claims cannot double-insert.
package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/vpnkit/entitlements"
)

const entCols = `id, user_id, package_id, endpoint_id, kind, name, stat_id, created_at, finished_at, renewals`

// Store persists entitlements in the user_packages table.
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

func (s *Store) table() string    { return s.schema + ".user_packages" }
func (s *Store) profiles() string { return s.schema + ".profiles" }
func (s *Store) packages() string { return s.schema + ".packages" }

func scanEntitlement(row pgx.Row) (*entitlements.Entitlement, error) {
	var e entitlements.Entitlement
	err := row.Scan(&e.ID, &e.UserID, &e.TemplateID, &e.EndpointID, &e.Kind, &e.Name,
		&e.StatID, &e.CreatedAt, &e.FinishedAt, &e.Renewals)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*entitlements.Entitlement, error) {
	var out *entitlements.Entitlement
	err := withRetry(ctx, func(ctx context.Context) error {
		e, err := scanEntitlement(s.pg.QueryRow(ctx,
			`SELECT `+entCols+` FROM `+s.table()+` WHERE id=$1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return entitlements.ErrNotFound
		}
		out = e
		return err
	})
	return out, err
}

func (s *Store) FindLatestByKind(ctx context.Context, userID uuid.UUID, kind entitlements.Kind) (*entitlements.Entitlement, error) {
	var out *entitlements.Entitlement
	err := withRetry(ctx, func(ctx context.Context) error {
		e, err := scanEntitlement(s.pg.QueryRow(ctx,
			`SELECT `+entCols+` FROM `+s.table()+`
			 WHERE user_id=$1 AND kind=$2
			 ORDER BY created_at DESC LIMIT 1`, userID, kind))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // no grant yet is not an error
		}
		out = e
		return err
	})
	return out, err
}

func (s *Store) insert(ctx context.Context, tx pgx.Tx, e *entitlements.Entitlement) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+entCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.UserID, e.TemplateID, e.EndpointID, e.Kind, e.Name,
		e.StatID, e.CreatedAt, e.FinishedAt, e.Renewals)
	return err
}

// InsertPaid debits the price and inserts the entitlement in one transaction.
// The debit is a conditional update, so a balance that cannot cover the price
// rolls back with no partial effect.
func (s *Store) InsertPaid(ctx context.Context, e *entitlements.Entitlement, priceCents int64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pg, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`UPDATE `+s.profiles()+`
				 SET balance_cents = balance_cents - $2, updated_at = NOW()
				 WHERE id = $1 AND balance_cents >= $2`, e.UserID, priceCents)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return entitlements.ErrInsufficientFunds
			}
			return s.insert(ctx, tx, e)
		})
	})
}

// InsertFreeDaily inserts unless a free-daily grant for the user exists
// inside the trailing window. The per-user advisory lock makes the
// check-then-insert atomic against concurrent claims.
func (s *Store) InsertFreeDaily(ctx context.Context, e *entitlements.Entitlement, window time.Duration) error {
	return withRetry(ctx, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pg, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx,
				`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, e.UserID); err != nil {
				return err
			}
			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS(
					SELECT 1 FROM `+s.table()+`
					WHERE user_id=$1 AND kind=$2 AND created_at > $3)`,
				e.UserID, entitlements.KindFreeDaily, e.CreatedAt.Add(-window)).Scan(&exists)
			if err != nil {
				return err
			}
			if exists {
				return entitlements.ErrAlreadyClaimed
			}
			return s.insert(ctx, tx, e)
		})
	})
}

// InsertGift relies on the partial unique index over (user_id, package_id)
// for gift rows; a duplicate surfaces as ErrAlreadyGranted.
func (s *Store) InsertGift(ctx context.Context, e *entitlements.Entitlement) error {
	return withRetry(ctx, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pg, func(tx pgx.Tx) error {
			err := s.insert(ctx, tx, e)
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return entitlements.ErrAlreadyGranted
			}
			return err
		})
	})
}

func (s *Store) Renew(ctx context.Context, id uuid.UUID, finishedAt time.Time) (*entitlements.Entitlement, error) {
	var out *entitlements.Entitlement
	err := withRetry(ctx, func(ctx context.Context) error {
		e, err := scanEntitlement(s.pg.QueryRow(ctx,
			`UPDATE `+s.table()+`
			 SET finished_at=$2, renewals=renewals+1
			 WHERE id=$1
			 RETURNING `+entCols, id, finishedAt))
		if errors.Is(err, pgx.ErrNoRows) {
			return entitlements.ErrNotFound
		}
		out = e
		return err
	})
	return out, err
}

func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]entitlements.Entitlement, error) {
	var out []entitlements.Entitlement
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pg.Query(ctx,
			`SELECT `+entCols+` FROM `+s.table()+`
			 WHERE user_id=$1 ORDER BY created_at DESC`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			e, err := scanEntitlement(rows)
			if err != nil {
				return err
			}
			out = append(out, *e)
		}
		return rows.Err()
	})
	return out, err
}

// MarkExpired closes every entitlement whose template duration has elapsed
// and whose finished_at is still NULL. Rows already marked are untouched,
// which keeps the sweep idempotent and safe next to renewals.
func (s *Store) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := withRetry(ctx, func(ctx context.Context) error {
		tag, err := s.pg.Exec(ctx,
			`UPDATE `+s.table()+` up
			 SET finished_at = $1
			 FROM `+s.packages()+` p
			 WHERE p.id = up.package_id
			   AND up.finished_at IS NULL
			   AND p.duration_days > 0
			   AND up.created_at + make_interval(days => p.duration_days) <= $1`, now)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}
