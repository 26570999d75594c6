package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
)

// Renew extends an entitlement by its template's duration. The extension
// starts from the current finishedAt when that is still in the future, so
// renewing early never shortens or compounds the paid-for time; an already
// expired entitlement extends from now.
func (s *Service) Renew(ctx context.Context, userID, entitlementID uuid.UUID) (*entitlements.Entitlement, error) {
	e, err := s.store.Get(ctx, entitlementID)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, entitlements.ErrNotOwned
	}

	tpl, err := s.catalog.Get(ctx, e.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.Renewable || tpl.Unlimited() {
		return nil, entitlements.ErrNotRenewable
	}

	now := s.now()
	base := now
	if e.FinishedAt != nil && e.FinishedAt.After(now) {
		base = *e.FinishedAt
	}

	renewed, err := s.store.Renew(ctx, e.ID, base.Add(tpl.Duration()))
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"user_id":     userID,
		"entitlement": e.ID,
		"finished_at": renewed.FinishedAt,
	}).Info("package renewed")
	s.audit(ctx, renewed, "renew")
	return renewed, nil
}
