// README: HTTP route registration.
package http

import (
	"github.com/gin-gonic/gin"

	"petmarket/internal/http/handlers"
	"petmarket/internal/http/middleware"
)

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))
	r.GET("/health", s.health)

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))

	orderHandler := handlers.NewOrderHandler(s.deps.Order)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/accept", orderHandler.Accept)
	api.POST("/orders/:id/reject", orderHandler.Reject)
	api.POST("/orders/:id/progress", orderHandler.Progress)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)

	scheduleHandler := handlers.NewScheduleHandler(s.deps.Order, s.deps.Resolver, s.deps.Schedule, s.deps.Clock)
	api.GET("/providers/:id/hours", scheduleHandler.Hours)
	api.GET("/providers/:id/staff/:staff_id/availability", scheduleHandler.StaffAvailability)
	api.GET("/providers/:id/calendar", scheduleHandler.Calendar)
	api.GET("/staff/:id/bookings", scheduleHandler.StaffBookings)

	limiter := middleware.NewCallerLimiter(s.deps.RatePerSecond, s.deps.RateBurst)
	deliveryHandler := handlers.NewDeliveryHandler(s.deps.Dispatch)
	delivery := api.Group("", middleware.RateLimit(limiter))
	delivery.POST("/delivery-requests/:id/action", deliveryHandler.Action)
	delivery.GET("/providers/:id/delivery-requests", deliveryHandler.ProviderPending)
	delivery.GET("/drivers/:id/delivery-requests", deliveryHandler.DriverPending)

	return r
}
