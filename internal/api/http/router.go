package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-gateway/internal/api/http/handlers"
	"github.com/spec-kit/support-gateway/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Simulate       *handlers.SimulateHandler
	Tickets        *handlers.TicketsHandler
	Rules          *handlers.RulesHandler
	Stats          *handlers.StatsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)
	api.Post("/simulate", cfg.Simulate.Simulate)
	api.Get("/tickets", cfg.Tickets.Active)
	api.Get("/tickets/closed", cfg.Tickets.Closed)
	api.Get("/tickets/closed/:id/transcript", cfg.Tickets.Transcript)
	api.Get("/rules", cfg.Rules.List)
	api.Post("/rules/reload", cfg.Rules.Reload)
	api.Post("/rules/pause", cfg.Rules.Pause)
	api.Get("/stats", cfg.Stats.Stats)
}
