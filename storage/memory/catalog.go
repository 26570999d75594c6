package memorystore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
)

// Catalog is a fixed in-memory package catalog. Templates are immutable once
// added.
type Catalog struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]entitlements.PackageTemplate
	order     []uuid.UUID
}

func NewCatalog(templates ...entitlements.PackageTemplate) *Catalog {
	c := &Catalog{templates: make(map[uuid.UUID]entitlements.PackageTemplate)}
	for _, t := range templates {
		c.templates[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c
}

func (c *Catalog) get(id uuid.UUID) *entitlements.PackageTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.templates[id]; ok {
		return &t
	}
	return nil
}

func (c *Catalog) Get(_ context.Context, id uuid.UUID) (*entitlements.PackageTemplate, error) {
	if t := c.get(id); t != nil {
		return t, nil
	}
	return nil, entitlements.ErrNotFound
}

func (c *Catalog) FreeDaily(_ context.Context) (*entitlements.PackageTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		if t := c.templates[id]; t.Kind == entitlements.KindFreeDaily {
			return &t, nil
		}
	}
	return nil, entitlements.ErrTemplateUnavailable
}

func (c *Catalog) ListPurchasable(_ context.Context) ([]entitlements.PackageTemplate, error) {
	return c.list(func(t entitlements.PackageTemplate) bool {
		return t.Kind == entitlements.KindPaid && t.Purchasable
	}), nil
}

func (c *Catalog) ListGift(_ context.Context) ([]entitlements.PackageTemplate, error) {
	return c.list(func(t entitlements.PackageTemplate) bool {
		return t.Kind == entitlements.KindGift
	}), nil
}

func (c *Catalog) list(keep func(entitlements.PackageTemplate) bool) []entitlements.PackageTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []entitlements.PackageTemplate
	for _, id := range c.order {
		if t := c.templates[id]; keep(t) {
			out = append(out, t)
		}
	}
	return out
}
