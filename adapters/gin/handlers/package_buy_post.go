package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/open-rails/vpnkit/adapters/ginutil"
	core "github.com/open-rails/vpnkit/core"
)

type buyPackageRequest struct {
	PackageID uuid.UUID `json:"package_id" binding:"required"`
}

// HandlePackageBuyPOST purchases a paid package and returns the connection
// link for the freshly bound endpoint.
func HandlePackageBuyPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLPackageBuy) {
			ginutil.TooMany(c)
			return
		}
		uid, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "missing_user")
			return
		}
		var req buyPackageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_body")
			return
		}

		e, err := svc.Purchase(c.Request.Context(), uid, req.PackageID)
		if err != nil {
			ginutil.EngineError(c, err)
			return
		}
		link, err := svc.IssueLink(c.Request.Context(), e)
		if err != nil {
			ginutil.EngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"link": link, "package": e})
	}
}
