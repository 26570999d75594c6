// Package authgin is the gin access layer: it resolves the caller from a
// bearer token, invokes the lifecycle engine, and serializes results. The
// engine itself never sees a token.
package authgin

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/open-rails/vpnkit/adapters/ginutil"
)

// Verifier validates bearer tokens against a remote JWKS in verify-only
// mode; token issuance stays with the identity provider.
type Verifier struct {
	issuer   string
	audience string
	jwksURL  string
	cache    *jwk.Cache
}

// NewVerifier registers the JWKS URL with a refreshing cache. ctx bounds the
// background refresh goroutine.
func NewVerifier(ctx context.Context, issuer, audience, jwksURL string) (*Verifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(5*time.Minute)); err != nil {
		return nil, err
	}
	return &Verifier{issuer: issuer, audience: audience, jwksURL: jwksURL, cache: cache}, nil
}

// UserID verifies the raw token and returns the subject as a user id.
func (v *Verifier) UserID(ctx context.Context, raw string) (uuid.UUID, error) {
	set, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return uuid.Nil, err
	}
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKeySet(set),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidate(true),
	)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(tok.Subject())
}

// AuthRequired gates a route group on a valid bearer token and stashes the
// resolved user id for handlers.
func AuthRequired(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			ginutil.Unauthorized(c, "missing_token")
			return
		}
		uid, err := v.UserID(c.Request.Context(), strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			ginutil.Unauthorized(c, "invalid_token")
			return
		}
		c.Set(ginutil.CtxUserID, uid)
		c.Next()
	}
}
