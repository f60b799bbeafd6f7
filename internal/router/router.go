package router // package router wires HTTP routes to handlers and middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-hold/internal/handler"
	"github.com/iliyamo/bus-seat-hold/internal/middleware"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Health       *handler.HealthHandler
	Holds        *handler.HoldHandler
	Availability *handler.AvailabilityHandler
	Bookings     *handler.BookingHandler
	Events       *handler.EventsHandler
	Admin        *handler.AdminHandler
}

// RegisterRoutes mounts the API on e.  Every /v1 route resolves the caller
// first; reads are open to anonymous callers while writes need a user or
// guest principal and pass through limiter.  limiter may be nil.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string, limiter echo.MiddlewareFunc) {
	// Load balancer probe, no identity required.
	e.GET("/healthz", h.Health.Check)

	v1 := e.Group("/v1", middleware.Identity(jwtSecret))

	// Seat map and live transitions of a trip.
	v1.GET("/trips/:id/availability", h.Availability.Get)
	v1.GET("/trips/:id/events", h.Events.Stream)

	writes := []echo.MiddlewareFunc{middleware.RequirePrincipal()}
	if limiter != nil {
		writes = append(writes, limiter)
	}
	trip := v1.Group("/trips/:id", writes...)
	trip.POST("/holds", h.Holds.AcquireOrExtend)
	trip.POST("/holds/:token/refresh", h.Holds.Refresh)
	trip.DELETE("/holds/:token", h.Holds.Release)
	trip.POST("/bookings", h.Bookings.Finalize)

	// Operator endpoints require an ADMIN bearer token.
	admin := v1.Group("/admin", middleware.RequireRole(handler.RoleAdmin))
	admin.POST("/holds/sweep", h.Admin.Sweep)
}
