package handlers

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/rbac"
)

// MetaHandler serves the static vocabularies clients need to build requests.
type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

type MetaAction struct {
	ID      models.Action `json:"id"`
	Ordinal int           `json:"ordinal"`
}

type MetaRole struct {
	ID          string   `json:"id"`
	Permissions []string `json:"permissions"`
}

var predefinedActions = func() []MetaAction {
	out := make([]MetaAction, 0, len(models.Actions()))
	for i, a := range models.Actions() {
		out = append(out, MetaAction{ID: a, Ordinal: i})
	}
	return out
}()

var predefinedRoles = func() []MetaRole {
	out := make([]MetaRole, 0, len(rbac.RolePermissions))
	for role, perms := range rbac.RolePermissions {
		out = append(out, MetaRole{ID: role, Permissions: perms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}()

func (h *MetaHandler) GetActions(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: predefinedActions})
}

func (h *MetaHandler) GetRoles(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: predefinedRoles})
}
