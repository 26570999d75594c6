// Package ginutil holds response helpers and shared wiring for the gin
// adapter: typed-failure mapping, rate-limit buckets, and the authenticated
// user context key.
package ginutil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/entitlements"
)

// CtxUserID is the gin context key carrying the authenticated user id.
const CtxUserID = "auth.user_id"

// Rate-limit bucket names for grant endpoints.
const (
	RLPackageBuy   = "package:buy"
	RLPackageRenew = "package:renew"
	RLPackageFree  = "package:free_daily"
	RLPackageGift  = "package:gift"
)

// RateLimiter matches the ratelimit implementations (memory and redis).
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// AllowNamed checks the bucket for the current caller, keyed by user id when
// authenticated and client IP otherwise. Limiter errors fail open: a broken
// limiter must not take grant endpoints down.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key := c.ClientIP()
	if uid, ok := UserID(c); ok {
		key = uid.String()
	}
	ok, err := rl.AllowNamed(bucket, key)
	if err != nil {
		return true
	}
	return ok
}

// UserID returns the authenticated caller set by the auth middleware.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func BadRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func Unauthorized(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

func ServerErr(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
}

// EngineError maps a typed engine failure to its external status. Unknown
// errors become a generic 500 without leaking internals.
func EngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entitlements.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, entitlements.ErrNotOwned):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not_owned"})
	case errors.Is(err, entitlements.ErrGiftNotEnabled):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "gift_not_enabled"})
	case errors.Is(err, entitlements.ErrNotRenewable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "not_renewable"})
	case errors.Is(err, entitlements.ErrAlreadyGranted):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already_granted"})
	case errors.Is(err, entitlements.ErrAlreadyClaimed):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already_claimed"})
	case errors.Is(err, entitlements.ErrTemplateUnavailable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "template_unavailable"})
	case errors.Is(err, entitlements.ErrInsufficientFunds):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient_funds"})
	case errors.Is(err, entitlements.ErrStoreUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
	case errors.Is(err, entitlements.ErrInvalidEndpoint):
		ServerErr(c, "invalid_endpoint")
	default:
		ServerErr(c, "internal")
	}
}
