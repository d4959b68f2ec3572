package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter builds the gin engine with the session middleware applied to
// every route. Handlers that require a bound identity resolve it themselves
// through the auth service.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.auth.Sessions().Middleware())

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		authGroup := api.Group("/auth")
		{
			authGroup.GET("/nonce", h.GetNonce)
			authGroup.POST("/verify", h.Verify)
			authGroup.GET("/me", h.Me)
			authGroup.POST("/logout", h.Logout)
		}

		api.GET("/listings", h.GetListings)
		api.POST("/listings", h.CreateListing)
		api.DELETE("/listings/:id", h.CancelListing)

		api.POST("/transactions/buy", h.BuyEnergy)
		api.GET("/transactions", h.GetTransactions)

		api.GET("/users/:walletAddress", h.GetUserByWallet)
	}

	return r
}
