package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/vpnkit/adapters/ginutil"
	core "github.com/open-rails/vpnkit/core"
)

func HandleUserPackagesGET(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := ginutil.UserID(c)
		if !ok {
			ginutil.Unauthorized(c, "missing_user")
			return
		}
		out, err := svc.ListUserEntitlements(c.Request.Context(), uid)
		if err != nil {
			ginutil.EngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"packages": out})
	}
}
