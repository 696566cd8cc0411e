package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/recipe-service/internal/api/http/handlers"
	"github.com/spec-kit/recipe-service/internal/auth"
	"github.com/spec-kit/recipe-service/internal/domain"
	"github.com/spec-kit/recipe-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler
	Users         *handlers.UsersHandler
	Authenticator *auth.Authenticator
	Gate          *auth.Gate
	LoginLimiter  *RateLimiter
	Metrics       *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/", cfg.Health.Welcome)
	app.Get("/health", cfg.Health.Health)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.LoginLimiter != nil {
		limit = cfg.LoginLimiter.Handler()
	}
	requireAuth := cfg.Authenticator.Require()

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/login", limit, cfg.Auth.Login)
	authGroup.Post("/register", limit, cfg.Auth.Register)
	authGroup.Post("/logout", cfg.Authenticator.Optional(), cfg.Auth.Logout)

	api.Get("/me", requireAuth, cfg.Auth.Me)
	api.Get("/users/:id", requireAuth, cfg.Gate.RequireOwner(cfg.Users.OwnerID), cfg.Users.Get)

	admin := api.Group("/admin", requireAuth, cfg.Gate.RequireRole(domain.RoleAdmin))
	admin.Get("/ping", cfg.Users.AdminPing)
}
