// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fixit/internal/http/handlers"
	"fixit/internal/http/middleware"
)

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(s.verifier))
	customer := middleware.RequireRole(middleware.RoleCustomer, middleware.RoleOperator)
	worker := middleware.RequireRole(middleware.RoleWorker)
	operator := middleware.RequireRole(middleware.RoleOperator)

	bookingHandler := handlers.NewBookingHandler(s.bookings, s.matching)
	api.POST("/bookings", customer, bookingHandler.Create)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.GET("/bookings/:id/candidates", customer, bookingHandler.Candidates)
	api.POST("/bookings/:id/transition", operator, bookingHandler.Transition)
	api.POST("/bookings/:id/accept", worker, bookingHandler.Accept)
	api.POST("/bookings/:id/assign", operator, bookingHandler.Assign)
	api.POST("/bookings/:id/start", worker, bookingHandler.Start)
	api.POST("/bookings/:id/complete", worker, bookingHandler.Complete)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)

	workerHandler := handlers.NewWorkerHandler(s.workers)
	api.POST("/workers", operator, workerHandler.Register)
	api.PUT("/workers/:id/availability", workerHandler.SetAvailability)
	api.PUT("/workers/:id/location", workerHandler.UpdateLocation)

	if s.tracker != nil {
		trackingHandler := handlers.NewTrackingHandler(s.bookings, s.tracker, s.devices)
		api.POST("/bookings/:id/tracking/start", worker, trackingHandler.Start)
		api.POST("/bookings/:id/tracking/fix", worker, trackingHandler.Fix)
		api.POST("/bookings/:id/tracking/stop", worker, trackingHandler.Stop)
	}
	if s.stream != nil {
		locationHandler := handlers.NewLocationHandler(s.bookings, s.stream)
		api.GET("/bookings/:id/location", locationHandler.Latest)
		api.GET("/bookings/:id/location/stream", locationHandler.Stream)
	}
	return r
}
