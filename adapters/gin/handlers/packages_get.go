package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/vpnkit/adapters/ginutil"
	core "github.com/open-rails/vpnkit/core"
)

func HandlePackagesGET(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		pkgs, err := svc.ListPackages(c.Request.Context())
		if err != nil {
			ginutil.EngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"packages": pkgs})
	}
}
