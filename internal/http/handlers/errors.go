package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/diff"
	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/middleware"
	"github.com/audit-trail/backend/internal/repositories"
	"github.com/audit-trail/backend/internal/services"
)

// writeError maps domain errors to HTTP statuses. Unexpected errors are
// logged and answered with a generic 500.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	reqID := middleware.GetRequestID(c)

	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, diff.ErrInvalidSnapshotFormat):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: reqID})
	case errors.Is(err, repositories.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "not found", RequestID: reqID})
	}

	log.Error("request failed",
		zap.String("request_id", reqID),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error", RequestID: reqID})
}

func badRequest(c *fiber.Ctx, msg string, details ...string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
	})
}
