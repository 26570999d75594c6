package memorystore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Profiles tracks the per-user gift eligibility flag in memory.
type Profiles struct {
	mu      sync.Mutex
	enabled map[uuid.UUID]bool
}

func NewProfiles() *Profiles {
	return &Profiles{enabled: make(map[uuid.UUID]bool)}
}

func (p *Profiles) GiftEnabled(_ context.Context, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[userID], nil
}

func (p *Profiles) EnableGift(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled[userID] = true
	return nil
}
