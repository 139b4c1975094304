package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/services"
)

type AuditHandler struct {
	auditService *services.AuditService
	validator    *dto.Validator
	log          *zap.Logger
}

func NewAuditHandler(auditService *services.AuditService, validator *dto.Validator, log *zap.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, validator: validator, log: log}
}

func (h *AuditHandler) CreateAudit(c *fiber.Ctx) error {
	var req dto.CreateAuditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", err.Error())
	}
	if msgs := h.validator.Struct(req); len(msgs) > 0 {
		return badRequest(c, "validation failed", msgs...)
	}

	entry, err := h.auditService.CreateEntry(c.UserContext(), req.Input())
	if err != nil {
		return writeError(c, h.log, err)
	}

	c.Location(fmt.Sprintf("/api/v1/audit/%d", entry.ID))
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: entry})
}

func (h *AuditHandler) ListAudit(c *fiber.Ctx) error {
	q, err := parseAuditQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	page, err := h.auditService.GetEntries(c.UserContext(), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: page})
}

func (h *AuditHandler) GetAudit(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return badRequest(c, "invalid audit id")
	}

	entry, err := h.auditService.GetEntry(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entry})
}

func (h *AuditHandler) GetEntityHistory(c *fiber.Ctx) error {
	history, err := h.auditService.GetEntityHistory(c.UserContext(), c.Params("entityName"), c.Params("entityId"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: history})
}

func (h *AuditHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.auditService.GetStats(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: stats})
}

func parseAuditQuery(c *fiber.Ctx) (models.AuditQuery, error) {
	q := models.AuditQuery{
		EntityName: c.Query("entityName"),
		EntityID:   c.Query("entityId"),
		UserID:     c.Query("userId"),
	}

	if v := c.Query("action"); v != "" {
		a, err := models.ParseAction(v)
		if err != nil {
			return q, err
		}
		q.Action = &a
	}

	var err error
	if q.From, err = parseDate(c.Query("fromDate")); err != nil {
		return q, fmt.Errorf("invalid fromDate: %w", err)
	}
	if q.To, err = parseDate(c.Query("toDate")); err != nil {
		return q, fmt.Errorf("invalid toDate: %w", err)
	}

	if v := c.Query("pageNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("invalid pageNumber %q", v)
		}
		q.PageNumber = n
	}
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("invalid pageSize %q", v)
		}
		q.PageSize = n
	}

	return q, nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate accepts RFC 3339 or a bare date/datetime, read as UTC.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
