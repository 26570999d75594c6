package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/vpnkit/adapters/ginutil"
	core "github.com/open-rails/vpnkit/core"
)

// HandleFreeDailyPOST claims the free daily package. A repeat claim while the
// grant is active returns the same entitlement; a claim inside the window
// after it finished maps to 409.
func HandleFreeDailyPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLPackageFree) {
			ginutil.TooMany(c)
			return
		}
		uid, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "missing_user")
			return
		}

		e, err := svc.ClaimFreeDaily(c.Request.Context(), uid)
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
