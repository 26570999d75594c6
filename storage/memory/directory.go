package memorystore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
)

// Directory is an in-memory endpoint directory with round-robin assignment.
type Directory struct {
	mu        sync.Mutex
	endpoints []entitlements.Endpoint
	next      int
}

func NewDirectory(endpoints ...entitlements.Endpoint) *Directory {
	return &Directory{endpoints: endpoints}
}

func (d *Directory) Lookup(_ context.Context, id uuid.UUID) (*entitlements.Endpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.endpoints {
		if d.endpoints[i].ID == id {
			ep := d.endpoints[i]
			return &ep, nil
		}
	}
	return nil, entitlements.ErrNotFound
}

// Select rotates through the configured endpoints. The template is ignored;
// any endpoint serves any package.
func (d *Directory) Select(_ context.Context, _ uuid.UUID) (*entitlements.Endpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.endpoints) == 0 {
		return nil, entitlements.ErrNotFound
	}
	ep := d.endpoints[d.next%len(d.endpoints)]
	d.next++
	return &ep, nil
}
