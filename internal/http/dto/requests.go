package dto

import (
	"encoding/json"

	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/services"
)

// CreateAuditRequest is the body of POST /audit and of ingest messages.
// Snapshots may be JSON objects or strings holding serialized objects.
type CreateAuditRequest struct {
	EntityName         string                     `json:"entityName" validate:"required,max=256"`
	EntityID           string                     `json:"entityId" validate:"required,max=256"`
	Action             models.Action              `json:"action" validate:"required,audit_action"`
	UserID             string                     `json:"userId" validate:"required,max=256"`
	ObjectBefore       json.RawMessage            `json:"objectBefore,omitempty"`
	ObjectAfter        json.RawMessage            `json:"objectAfter,omitempty"`
	AdditionalMetadata map[string]json.RawMessage `json:"additionalMetadata,omitempty"`
}

// Input converts a validated request into service input.
func (r CreateAuditRequest) Input() services.CreateEntryInput {
	return services.CreateEntryInput{
		EntityName:   r.EntityName,
		EntityID:     r.EntityID,
		Action:       r.Action,
		UserID:       r.UserID,
		ObjectBefore: r.ObjectBefore,
		ObjectAfter:  r.ObjectAfter,
		Metadata:     r.AdditionalMetadata,
	}
}

type TokenRequest struct {
	ClientID     string `json:"clientId" validate:"required"`
	ClientSecret string `json:"clientSecret" validate:"required"`
}
