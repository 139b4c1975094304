package middleware

import (
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/auth"
	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/rbac"
)

const (
	CtxClientID = "client_id"
	CtxRole     = "role"
)

// AuthMiddleware accepts a bearer token. Websocket upgrades may pass it as
// a "token" query parameter instead, since browsers cannot set headers
// there; other requests ignore the query parameter.
func AuthMiddleware(secret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var tokenStr string
		if websocket.IsWebSocketUpgrade(c) {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			authHeader := c.Get("Authorization")
			if authHeader == "" {
				return deny(c, fiber.StatusUnauthorized, "missing authorization header")
			}
			tokenStr = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenStr == authHeader {
				return deny(c, fiber.StatusUnauthorized, "invalid authorization format")
			}
		}

		claims, err := auth.ParseJWT(secret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return deny(c, fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(CtxClientID, claims.Subject)
		c.Locals(CtxRole, claims.Role)

		return c.Next()
	}
}

func GetClientID(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxClientID).(string)
	return id
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	return role
}

// RequirePermission must run after AuthMiddleware.
func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetRole(c), perm) {
			return deny(c, fiber.StatusForbidden, "missing permission "+perm)
		}
		return c.Next()
	}
}

func deny(c *fiber.Ctx, status int, msg string) error {
	reqID, _ := c.Locals(CtxRequestID).(string)
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}
