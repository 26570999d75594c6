package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/open-rails/vpnkit/core"
	"github.com/open-rails/vpnkit/entitlements"
)

// CatalogCache is a read-through Redis cache in front of a core.Catalog.
// Templates are immutable once published, so a short TTL is only needed to
// pick up newly published entries.
type CatalogCache struct {
	next  core.Catalog
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

func NewCatalogCache(next core.Catalog, rdb *redis.Client, keyPrefix string, ttl time.Duration) *CatalogCache {
	if keyPrefix == "" {
		keyPrefix = "vpn:catalog:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogCache{next: next, rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (c *CatalogCache) key(suffix string) string { return c.keyNS + suffix }

func (c *CatalogCache) getOne(ctx context.Context, key string, load func(context.Context) (*entitlements.PackageTemplate, error)) (*entitlements.PackageTemplate, error) {
	if val, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var t entitlements.PackageTemplate
		if json.Unmarshal(val, &t) == nil {
			return &t, nil
		}
	}
	t, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(t); err == nil {
		// Cache fill is best-effort; a miss next time just reloads.
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return t, nil
}

func (c *CatalogCache) getList(ctx context.Context, key string, load func(context.Context) ([]entitlements.PackageTemplate, error)) ([]entitlements.PackageTemplate, error) {
	if val, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var ts []entitlements.PackageTemplate
		if json.Unmarshal(val, &ts) == nil {
			return ts, nil
		}
	}
	ts, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(ts); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return ts, nil
}

func (c *CatalogCache) Get(ctx context.Context, id uuid.UUID) (*entitlements.PackageTemplate, error) {
	return c.getOne(ctx, c.key("tpl:"+id.String()), func(ctx context.Context) (*entitlements.PackageTemplate, error) {
		return c.next.Get(ctx, id)
	})
}

func (c *CatalogCache) FreeDaily(ctx context.Context) (*entitlements.PackageTemplate, error) {
	return c.getOne(ctx, c.key("free_daily"), c.next.FreeDaily)
}

func (c *CatalogCache) ListPurchasable(ctx context.Context) ([]entitlements.PackageTemplate, error) {
	return c.getList(ctx, c.key("purchasable"), c.next.ListPurchasable)
}

func (c *CatalogCache) ListGift(ctx context.Context) ([]entitlements.PackageTemplate, error) {
	return c.getList(ctx, c.key("gift"), c.next.ListGift)
}
