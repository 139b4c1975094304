package http

import (
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/http/handlers"
	"github.com/audit-trail/backend/internal/middleware"
	"github.com/audit-trail/backend/internal/rbac"
)

type Handlers struct {
	Audit  *handlers.AuditHandler
	Auth   *handlers.AuthHandler
	Health *handlers.HealthHandler
	Meta   *handlers.MetaHandler
	WS     *handlers.WSHub
}

// NewApp builds a fiber app whose unhandled errors use the API error shape.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)})
		},
	})
}

// SetupRouter wires middleware and routes. rdb may be nil, which disables
// rate limiting. h.Meta and h.WS are optional.
func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(middleware.MetricsMiddleware())

	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/token", h.Auth.IssueToken)

	// Meta (public)
	if h.Meta != nil {
		meta := api.Group("/meta")
		meta.Get("/actions", h.Meta.GetActions)
		meta.Get("/roles", h.Meta.GetRoles)
	}

	read := []fiber.Handler{}
	write := []fiber.Handler{}
	stats := []fiber.Handler{}
	if cfg.AuthEnabled {
		authn := middleware.AuthMiddleware(cfg.JWTSecret, log)
		read = append(read, authn, middleware.RequirePermission(rbac.PermAuditRead))
		write = append(write, authn, middleware.RequirePermission(rbac.PermAuditWrite))
		stats = append(stats, authn, middleware.RequirePermission(rbac.PermStatsRead))
	}
	if rdb != nil {
		limit := middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute)
		read = append(read, limit)
		write = append(write, limit)
		stats = append(stats, limit)
	}

	audit := api.Group("/audit")
	audit.Post("", chain(write, h.Audit.CreateAudit)...)
	audit.Get("", chain(read, h.Audit.ListAudit)...)
	audit.Get("/stats", chain(stats, h.Audit.GetStats)...)
	audit.Get("/entity/:entityName/:entityId", chain(read, h.Audit.GetEntityHistory)...)
	audit.Get("/:id", chain(read, h.Audit.GetAudit)...)

	// WebSocket
	if h.WS != nil {
		ws := append([]fiber.Handler{handlers.WSUpgradeMiddleware()}, read...)
		app.Get("/ws", chain(ws, websocket.New(h.WS.HandleWS))...)
	}

	log.Info("routes registered",
		zap.Bool("auth_enabled", cfg.AuthEnabled),
		zap.Bool("rate_limit", rdb != nil),
		zap.String("origins", strings.TrimSpace(cfg.AllowedOrigins)),
	)
}

func chain(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}
