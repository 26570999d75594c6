package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
	"github.com/open-rails/vpnkit/vless"
)

// UserPackage is the read projection of an entitlement returned to callers,
// including the connection link for its bound endpoint.
type UserPackage struct {
	entitlements.Entitlement
	Link   string `json:"link"`
	Active bool   `json:"active"`
}

// ListPackages returns the purchasable catalog.
func (s *Service) ListPackages(ctx context.Context) ([]entitlements.PackageTemplate, error) {
	return s.catalog.ListPurchasable(ctx)
}

// ListGiftPackages returns templates grantable via ClaimGift.
func (s *Service) ListGiftPackages(ctx context.Context) ([]entitlements.PackageTemplate, error) {
	return s.catalog.ListGift(ctx)
}

// ListUserEntitlements projects the user's entitlements, newest first, with
// their connection links.
func (s *Service) ListUserEntitlements(ctx context.Context, userID uuid.UUID) ([]UserPackage, error) {
	ents, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]UserPackage, 0, len(ents))
	for i := range ents {
		link, err := s.IssueLink(ctx, &ents[i])
		if err != nil {
			return nil, err
		}
		out = append(out, UserPackage{
			Entitlement: ents[i],
			Link:        link,
			Active:      ents[i].Active(now),
		})
	}
	return out, nil
}

// IssueLink resolves the entitlement's bound endpoint and renders its vless
// connection link.
func (s *Service) IssueLink(ctx context.Context, e *entitlements.Entitlement) (string, error) {
	ep, err := s.dir.Lookup(ctx, e.EndpointID)
	if err != nil {
		return "", err
	}
	return vless.Issue(e, ep)
}
