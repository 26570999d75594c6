package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/vpnkit/entitlements"
)

// Directory reads endpoints and assigns the least-loaded one to new grants.
type Directory struct {
	pg     *pgxpool.Pool
	schema string
}

func NewDirectory(pg *pgxpool.Pool, schema string) *Directory {
	d := &Directory{pg: pg, schema: schema}
	if d.schema == "" {
		d.schema = "vpn"
	}
	return d
}

func (d *Directory) table() string { return d.schema + ".endpoints" }
func (d *Directory) grants() string { return d.schema + ".user_packages" }

func scanEndpoint(row pgx.Row) (*entitlements.Endpoint, error) {
	var ep entitlements.Endpoint
	if err := row.Scan(&ep.ID, &ep.Address, &ep.Port, &ep.Brand); err != nil {
		return nil, err
	}
	return &ep, nil
}

func (d *Directory) Lookup(ctx context.Context, id uuid.UUID) (*entitlements.Endpoint, error) {
	var out *entitlements.Endpoint
	err := withRetry(ctx, func(ctx context.Context) error {
		ep, err := scanEndpoint(d.pg.QueryRow(ctx,
			`SELECT id, address, port, COALESCE(brand, '') FROM `+d.table()+` WHERE id=$1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return entitlements.ErrNotFound
		}
		out = ep
		return err
	})
	return out, err
}

// Select picks the endpoint carrying the fewest active entitlements. The
// template is accepted for future routing policies but does not influence the
// choice today.
func (d *Directory) Select(ctx context.Context, _ uuid.UUID) (*entitlements.Endpoint, error) {
	var out *entitlements.Endpoint
	err := withRetry(ctx, func(ctx context.Context) error {
		ep, err := scanEndpoint(d.pg.QueryRow(ctx,
			`SELECT e.id, e.address, e.port, COALESCE(e.brand, '')
			 FROM `+d.table()+` e
			 LEFT JOIN `+d.grants()+` up
			   ON up.endpoint_id = e.id
			  AND (up.finished_at IS NULL OR up.finished_at > NOW())
			 GROUP BY e.id, e.address, e.port, e.brand
			 ORDER BY COUNT(up.id), e.id
			 LIMIT 1`))
		if errors.Is(err, pgx.ErrNoRows) {
			return entitlements.ErrNotFound
		}
		out = ep
		return err
	})
	return out, err
}
