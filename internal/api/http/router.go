package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/supporthub/internal/api/http/handlers"
	"github.com/spec-kit/supporthub/internal/auth"
	"github.com/spec-kit/supporthub/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Inbound        *handlers.InboundHandler
	Ops            *handlers.OpsHandler
	Tenants        *handlers.TenantHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics is served unauthenticated at /metrics when set.
	Metrics nethttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	inbound := app.Group("/inbound", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleRelay, domain.RoleAdmin))
	inbound.Post("/:mailboxId", cfg.Inbound.Push)

	ops := app.Group("/ops", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	ops.Get("/runs", cfg.Ops.ListRuns)
	ops.Post("/runs/:pipeline", cfg.Ops.TriggerRun)

	// tenant scope is checked per route so the :tenantId param is resolved
	tenants := app.Group("/tenants", cfg.AuthMiddleware.Handle)
	scope := auth.RequireTenantParam("tenantId")
	staff := auth.RequireRole(domain.RoleAdmin, domain.RoleAgent)
	admin := auth.RequireRole(domain.RoleAdmin)

	tenants.Get("/:tenantId/tickets/:number/sla", staff, scope, cfg.Tenants.TicketSla)
	tenants.Get("/:tenantId/inbound", staff, scope, cfg.Inbound.ListRecent)
	tenants.Get("/:tenantId/rules", staff, scope, cfg.Tenants.ListRules)
	tenants.Put("/:tenantId/rules", admin, scope, cfg.Tenants.ReplaceRules)
	tenants.Get("/:tenantId/sla-policies", staff, scope, cfg.Tenants.ListPolicies)
	tenants.Put("/:tenantId/sla-policies/:priority", admin, scope, cfg.Tenants.UpsertPolicy)
}
