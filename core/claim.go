package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
)

// ClaimFreeDaily grants the free daily package, at most once per rolling
// 24-hour window per user. The window is measured from the createdAt of the
// previous free grant:
//
//   - no prior grant in the window: a fresh entitlement is created
//   - prior grant in the window, still active: that same entitlement is
//     returned unchanged (idempotent claim, not an error)
//   - prior grant in the window but already finished:
//     entitlements.ErrAlreadyClaimed until the window rolls over
//
// The final check-then-insert is atomic at the store; a claim that loses a
// race against a concurrent claim re-reads and lands in one of the two
// in-window branches.
func (s *Service) ClaimFreeDaily(ctx context.Context, userID uuid.UUID) (*entitlements.Entitlement, error) {
	now := s.now()
	for attempt := 0; attempt < 2; attempt++ {
		latest, err := s.store.FindLatestByKind(ctx, userID, entitlements.KindFreeDaily)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.InWindow(now, entitlements.FreeWindow) {
			if latest.Active(now) {
				return latest, nil
			}
			return nil, entitlements.ErrAlreadyClaimed
		}

		tpl, err := s.catalog.FreeDaily(ctx)
		if err != nil {
			return nil, err
		}
		ep, err := s.dir.Select(ctx, tpl.ID)
		if err != nil {
			return nil, err
		}

		// finishedAt stays unset until the expiry sweep observes the
		// duration elapsing.
		e := s.newGrant(userID, tpl, ep, now, nil)
		err = s.store.InsertFreeDaily(ctx, e, entitlements.FreeWindow)
		if errors.Is(err, entitlements.ErrAlreadyClaimed) {
			continue // concurrent claim won; re-read its grant
		}
		if err != nil {
			return nil, err
		}

		s.log.WithFields(map[string]interface{}{
			"user_id":  userID,
			"endpoint": ep.ID,
		}).Info("free daily package granted")
		s.audit(ctx, e, "free_daily")
		return e, nil
	}
	return nil, entitlements.ErrAlreadyClaimed
}

// ClaimGift grants a gift package, once per user per template. Eligibility is
// gated on the profile's gift flag, flipped by EnableGift.
func (s *Service) ClaimGift(ctx context.Context, userID, templateID uuid.UUID) (*entitlements.Entitlement, error) {
	enabled, err := s.profiles.GiftEnabled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, entitlements.ErrGiftNotEnabled
	}

	tpl, err := s.catalog.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.Kind != entitlements.KindGift {
		return nil, entitlements.ErrTemplateUnavailable
	}

	ep, err := s.dir.Select(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var finishedAt *time.Time
	if !tpl.Unlimited() {
		t := now.Add(tpl.Duration())
		finishedAt = &t
	}

	e := s.newGrant(userID, tpl, ep, now, finishedAt)
	if err := s.store.InsertGift(ctx, e); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":  userID,
		"template": tpl.Name,
	}).Info("gift package granted")
	s.audit(ctx, e, "gift")
	return e, nil
}

// EnableGift flips the user's gift eligibility flag. It is part of the
// engine's contract but carries no grant logic of its own.
func (s *Service) EnableGift(ctx context.Context, userID uuid.UUID) error {
	return s.profiles.EnableGift(ctx, userID)
}
