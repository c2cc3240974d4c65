// README: HTTP router registration.
package http

import (
	"github.com/gin-gonic/gin"

	"bookferry/internal/http/handlers"
	"bookferry/internal/http/middleware"
	"bookferry/internal/infra"
	"bookferry/internal/modules/match"
	"bookferry/internal/modules/matching"
	"bookferry/internal/modules/request"
	"bookferry/internal/modules/trip"
	"bookferry/internal/modules/user"
)

type RouterDeps struct {
	Verifier infra.TokenVerifier
	Users    *user.Store
	Requests *request.Service
	Trips    *trip.Service
	Matching *matching.Service
	Matches  *match.Service
	HasRole  middleware.RoleChecker
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	requestHandler := handlers.NewRequestHandler(deps.Requests, deps.Matching)
	tripHandler := handlers.NewTripHandler(deps.Trips, deps.Matching)
	matchingHandler := handlers.NewMatchingHandler(deps.Matching)
	matchHandler := handlers.NewMatchHandler(deps.Matches, deps.Matching)
	adminHandler := handlers.NewAdminHandler(deps.Matches, deps.Users)

	api := r.Group("/api", middleware.Auth(deps.Verifier, deps.Users))

	api.POST("/requests", requestHandler.Create)
	api.GET("/requests", requestHandler.ListMine)
	api.GET("/requests/:id", requestHandler.Get)
	api.POST("/requests/:id/withdraw", requestHandler.Withdraw)

	api.POST("/trips", tripHandler.Create)
	api.GET("/trips", tripHandler.ListMine)
	api.GET("/trips/:id", tripHandler.Get)
	api.POST("/trips/:id/withdraw", tripHandler.Withdraw)

	api.GET("/matches/dashboard", matchingHandler.Dashboard)
	api.POST("/matches", matchHandler.Propose)
	api.GET("/matches/:id", matchHandler.Get)
	api.POST("/matches/:id/payment", matchHandler.InitiatePayment)
	api.POST("/matches/:id/payment/confirm", matchHandler.ConfirmPayment)
	api.POST("/matches/:id/confirm-delivery", matchHandler.ConfirmDelivery)
	api.POST("/matches/:id/dispute", matchHandler.Dispute)
	api.POST("/matches/:id/withdraw", matchHandler.Withdraw)

	admin := api.Group("/admin", middleware.RequireRole(user.RoleAdmin, deps.HasRole))
	admin.GET("/disputes", adminHandler.ListDisputes)
	admin.POST("/matches/:id/resolve", adminHandler.Resolve)
	admin.POST("/users/:id/ban", adminHandler.SetBanned)

	return r
}
