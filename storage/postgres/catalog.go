package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/vpnkit/entitlements"
)

const tplCols = `id, name, kind, price_cents, duration_days, traffic_bytes, renewable, purchasable`

// Catalog reads package templates from the packages table. Templates are
// published by operators and never mutated here.
type Catalog struct {
	pg     *pgxpool.Pool
	schema string
}

func NewCatalog(pg *pgxpool.Pool, schema string) *Catalog {
	c := &Catalog{pg: pg, schema: schema}
	if c.schema == "" {
		c.schema = "vpn"
	}
	return c
}

func (c *Catalog) table() string { return c.schema + ".packages" }

func scanTemplate(row pgx.Row) (*entitlements.PackageTemplate, error) {
	var t entitlements.PackageTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Kind, &t.PriceCents, &t.DurationDays,
		&t.TrafficBytes, &t.Renewable, &t.Purchasable)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*entitlements.PackageTemplate, error) {
	var out *entitlements.PackageTemplate
	err := withRetry(ctx, func(ctx context.Context) error {
		t, err := scanTemplate(c.pg.QueryRow(ctx,
			`SELECT `+tplCols+` FROM `+c.table()+` WHERE id=$1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return entitlements.ErrNotFound
		}
		out = t
		return err
	})
	return out, err
}

func (c *Catalog) FreeDaily(ctx context.Context) (*entitlements.PackageTemplate, error) {
	var out *entitlements.PackageTemplate
	err := withRetry(ctx, func(ctx context.Context) error {
		t, err := scanTemplate(c.pg.QueryRow(ctx,
			`SELECT `+tplCols+` FROM `+c.table()+`
			 WHERE kind=$1 ORDER BY created_at LIMIT 1`, entitlements.KindFreeDaily))
		if errors.Is(err, pgx.ErrNoRows) {
			return entitlements.ErrTemplateUnavailable
		}
		out = t
		return err
	})
	return out, err
}

func (c *Catalog) ListPurchasable(ctx context.Context) ([]entitlements.PackageTemplate, error) {
	return c.list(ctx,
		`SELECT `+tplCols+` FROM `+c.table()+`
		 WHERE kind=$1 AND purchasable ORDER BY price_cents`, entitlements.KindPaid)
}

func (c *Catalog) ListGift(ctx context.Context) ([]entitlements.PackageTemplate, error) {
	return c.list(ctx,
		`SELECT `+tplCols+` FROM `+c.table()+`
		 WHERE kind=$1 ORDER BY created_at`, entitlements.KindGift)
}

func (c *Catalog) list(ctx context.Context, q string, args ...any) ([]entitlements.PackageTemplate, error) {
	var out []entitlements.PackageTemplate
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := c.pg.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			t, err := scanTemplate(rows)
			if err != nil {
				return err
			}
			out = append(out, *t)
		}
		return rows.Err()
	})
	return out, err
}
