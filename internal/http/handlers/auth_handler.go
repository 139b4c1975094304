package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/auth"
	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/middleware"
	"github.com/audit-trail/backend/internal/rbac"
)

type AuthHandler struct {
	cfg       *config.Config
	validator *dto.Validator
	log       *zap.Logger
}

func NewAuthHandler(cfg *config.Config, validator *dto.Validator, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, validator: validator, log: log}
}

// IssueToken exchanges API client credentials for a bearer token.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if msgs := h.validator.Struct(req); len(msgs) > 0 {
		return badRequest(c, "validation failed", msgs...)
	}

	client, ok := h.cfg.Client(req.ClientID)
	if !auth.CheckSecret(client.SecretHash, req.ClientSecret) || !ok {
		h.log.Info("token request rejected", zap.String("client_id", req.ClientID))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error:     "invalid client credentials",
			RequestID: middleware.GetRequestID(c),
		})
	}
	if !rbac.ValidRole(client.Role) {
		h.log.Warn("api client has unknown role", zap.String("client_id", client.ID), zap.String("role", client.Role))
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error:     "client role is not allowed",
			RequestID: middleware.GetRequestID(c),
		})
	}

	token, expiresAt, err := auth.GenerateJWT(h.cfg.JWTSecret, client.ID, client.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.UTC(),
		Role:      client.Role,
	}})
}
