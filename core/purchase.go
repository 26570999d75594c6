package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
)

// Purchase grants a paid package to the user. The balance debit and the
// entitlement insert commit together or not at all; on
// entitlements.ErrInsufficientFunds no record is written and no funds move.
func (s *Service) Purchase(ctx context.Context, userID, templateID uuid.UUID) (*entitlements.Entitlement, error) {
	tpl, err := s.catalog.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.Kind != entitlements.KindPaid || !tpl.Purchasable {
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
	if err := s.store.InsertPaid(ctx, e, tpl.PriceCents); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":  userID,
		"template": tpl.Name,
		"endpoint": ep.ID,
	}).Info("package purchased")
	s.audit(ctx, e, "purchase")
	return e, nil
}
