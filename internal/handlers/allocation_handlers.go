package handlers

import (
	"net/http"

	"stockroom/internal/common"
	"stockroom/internal/models"
	"stockroom/internal/services"

	"github.com/labstack/echo/v4"
)

// AllocationHandlers handles allocation and tag lifecycle HTTP requests
type AllocationHandlers struct {
	allocationService services.AllocationService
	tagService        services.TagService
}

// NewAllocationHandlers creates a new allocation handlers instance
func NewAllocationHandlers(allocationService services.AllocationService, tagService services.TagService) *AllocationHandlers {
	return &AllocationHandlers{
		allocationService: allocationService,
		tagService:        tagService,
	}
}

// CreateAllocation binds instances to a new tag. Nothing is bound when any
// line cannot be satisfied.
func (h *AllocationHandlers) CreateAllocation(c echo.Context) error {
	ctx := c.Request().Context()

	var draft models.TagDraft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	tag, err := h.allocationService.Allocate(ctx, draft, common.GetActorFromContext(ctx))
	if err != nil {
		return respondError(c, err, "create allocation")
	}

	return c.JSON(http.StatusCreated, tag)
}

// GetAllocation handles getting a tag by ID
func (h *AllocationHandlers) GetAllocation(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}

	tag, err := h.tagService.GetTag(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, "get allocation")
	}

	return c.JSON(http.StatusOK, tag)
}

// CancelAllocationRequest represents the cancellation payload
type CancelAllocationRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func (h *AllocationHandlers) CancelAllocation(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	var req CancelAllocationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := common.ValidateOptionalString(req.Reason, "reason", 500); err != nil {
		return common.SendValidationError(c, "reason", err.Error())
	}

	tag, err := h.tagService.Cancel(ctx, id, req.Reason, common.GetActorFromContext(ctx))
	if err != nil {
		return respondError(c, err, "cancel allocation")
	}

	return c.JSON(http.StatusOK, tag)
}

func (h *AllocationHandlers) FulfillAllocation(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	var opts services.FulfillOptions
	if err := c.Bind(&opts); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	result, err := h.tagService.Fulfill(ctx, id, opts, common.GetActorFromContext(ctx))
	if err != nil {
		return respondError(c, err, "fulfill allocation")
	}

	return c.JSON(http.StatusOK, result)
}

// ReturnInstances handles partial returns of loaned or reserved instances
func (h *AllocationHandlers) ReturnInstances(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	var req services.ReturnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if len(req.Selections) == 0 {
		return common.SendValidationError(c, "selections", "at least one selection is required")
	}

	result, err := h.tagService.PartialReturn(ctx, id, req, common.GetActorFromContext(ctx))
	if err != nil {
		return respondError(c, err, "return instances")
	}

	return c.JSON(http.StatusOK, result)
}

// ConsumeInstancesRequest represents a partial fulfillment payload
type ConsumeInstancesRequest struct {
	Selections []models.ReturnSelection `json:"selections"`
}

// ConsumeInstances handles partial fulfillment of consumption tags
func (h *AllocationHandlers) ConsumeInstances(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	var req ConsumeInstancesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if len(req.Selections) == 0 {
		return common.SendValidationError(c, "selections", "at least one selection is required")
	}

	result, err := h.tagService.PartialFulfill(ctx, id, req.Selections, common.GetActorFromContext(ctx))
	if err != nil {
		return respondError(c, err, "consume instances")
	}

	return c.JSON(http.StatusOK, result)
}
