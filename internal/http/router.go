// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shopd/internal/http/handlers"
	"shopd/internal/http/middleware"
)

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))

	dispatchHandler := handlers.NewDispatchHandler(s.deps.Trigger, s.deps.Coordinator, s.deps.Registry, s.deps.Clusters, s.deps.Gauges)
	ops := api.Group("/dispatch", middleware.RequireRole("ops"))
	ops.GET("/status", dispatchHandler.Status)
	ops.POST("/run", dispatchHandler.RunAll)
	ops.POST("/orders/:id", dispatchHandler.RunOrder)

	shopperHandler := handlers.NewShopperHandler(s.deps.Coordinator, s.deps.Registry, s.deps.Location, s.deps.Notifications, s.deps.Nearby)
	ops.GET("/shoppers/nearby", shopperHandler.Nearby)
	shoppers := api.Group("/shoppers/:id")
	shoppers.PUT("/location", shopperHandler.UpdateLocation)
	shoppers.PUT("/availability", shopperHandler.SetAvailability)
	shoppers.POST("/tokens", shopperHandler.SaveToken)
	shoppers.DELETE("/tokens/:token", shopperHandler.DeleteToken)
	shoppers.POST("/offers/:orderId/accept", shopperHandler.Accept)
	shoppers.POST("/offers/:orderId/reject", shopperHandler.Reject)

	wsHandler := handlers.NewWSHandler(s.deps.Registry, s.deps.Coordinator, s.deps.Location, s.log)
	r.GET("/ws", middleware.Auth(s.deps.Verifier), wsHandler.Serve)

	return r
}
