package authgin

import (
	"github.com/gin-gonic/gin"

	"github.com/open-rails/vpnkit/adapters/gin/handlers"
	"github.com/open-rails/vpnkit/adapters/ginutil"
	core "github.com/open-rails/vpnkit/core"
)

// Mount attaches the package routes under /packages, all gated on a valid
// bearer token.
func Mount(r gin.IRouter, svc *core.Service, v *Verifier, rl ginutil.RateLimiter) {
	g := r.Group("/packages", AuthRequired(v))
	g.GET("", handlers.HandlePackagesGET(svc))
	g.GET("/gifts", handlers.HandleGiftPackagesGET(svc))
	g.GET("/mine", handlers.HandleUserPackagesGET(svc))
	g.POST("/buy", handlers.HandlePackageBuyPOST(svc, rl))
	g.POST("/renew", handlers.HandlePackageRenewPOST(svc, rl))
	g.POST("/free-daily", handlers.HandleFreeDailyPOST(svc, rl))
	g.POST("/gifts/claim", handlers.HandleGiftClaimPOST(svc, rl))
	g.POST("/gifts/enable", handlers.HandleGiftEnablePOST(svc))
}
