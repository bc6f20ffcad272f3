package handlers

import (
	"net/http"
	"strconv"

	"stockroom/internal/common"
	"stockroom/internal/models"
	"stockroom/internal/services"

	"github.com/labstack/echo/v4"
)

// AuditLogsHandlers handles audit history requests
type AuditLogsHandlers struct {
	auditService services.AuditService
}

// NewAuditLogsHandlers creates a new audit logs handlers instance
func NewAuditLogsHandlers(auditService services.AuditService) *AuditLogsHandlers {
	return &AuditLogsHandlers{auditService: auditService}
}

var auditEntityTypes = map[string]bool{
	models.EntityTag:      true,
	models.EntityInstance: true,
	models.EntitySKU:      true,
}

// GetEntityHistory returns audit events for one tag, instance or SKU, newest first
func (h *AuditLogsHandlers) GetEntityHistory(c echo.Context) error {
	entityType := c.Param("entity_type")
	if !auditEntityTypes[entityType] {
		return common.SendValidationError(c, "entity_type", "must be one of tag, instance, sku")
	}
	entityID, ok, err := pathUUID(c, "entity_id")
	if !ok {
		return err
	}

	// Parse pagination
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	events, err := h.auditService.GetEntityHistory(c.Request().Context(), entityType, entityID, limit, offset)
	if err != nil {
		return respondError(c, err, "retrieve audit history")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   events,
		"total":  len(events),
		"limit":  limit,
		"offset": offset,
	})
}
