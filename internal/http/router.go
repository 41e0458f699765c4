// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebid/internal/http/handlers"
	httpmiddleware "ridebid/internal/http/middleware"
	"ridebid/internal/modules/auction"
	"ridebid/internal/modules/ride"
)

type RouterDeps struct {
	Auction *auction.Service
	Ride    *ride.Service
	Logger  *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	log := deps.Logger.With("module", "http")

	r := gin.New()
	r.Use(httpmiddleware.Recovery(log), httpmiddleware.Logging(log))

	api := r.Group("/api")

	auctionHandler := handlers.NewAuctionHandler(deps.Auction)
	auctions := api.Group("/auctions")
	auctions.POST("", auctionHandler.Register)
	auctions.GET("/open", auctionHandler.ListOpen)
	auctions.GET("/:id", auctionHandler.Get)
	auctions.GET("/:id/status", auctionHandler.Status)
	auctions.POST("/:id/bids", auctionHandler.SubmitBid)
	auctions.GET("/:id/bids", auctionHandler.ListBids)
	auctions.POST("/:id/accept", auctionHandler.Accept)
	auctions.POST("/:id/verify", auctionHandler.Verify)

	if deps.Ride != nil {
		rideHandler := handlers.NewRideHandler(deps.Ride)
		rides := api.Group("/rides")
		rides.GET("/:id", rideHandler.Get)
		rides.POST("/:id/complete", rideHandler.Complete)
		rides.POST("/:id/cancel", rideHandler.Cancel)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
