package handlers

import (
	"net/http"
	"time"

	"stockroom/internal/common"
	"stockroom/internal/models"
	"stockroom/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// InstanceHandlers handles instance stock and condition requests
type InstanceHandlers struct {
	instanceService services.InstanceService
	conditionRouter services.ConditionRouter
}

// NewInstanceHandlers creates a new instance handlers instance
func NewInstanceHandlers(instanceService services.InstanceService, conditionRouter services.ConditionRouter) *InstanceHandlers {
	return &InstanceHandlers{
		instanceService: instanceService,
		conditionRouter: conditionRouter,
	}
}

func (h *InstanceHandlers) GetInstance(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}

	instance, err := h.instanceService.GetInstance(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, "get instance")
	}

	return c.JSON(http.StatusOK, instance)
}

// ChangeConditionRequest represents a direct condition change
type ChangeConditionRequest struct {
	Condition models.Condition `json:"condition"`
	Reason    *string          `json:"reason,omitempty"`
}

// ChangeCondition moves an instance in or out of a maintenance or damage hold
func (h *InstanceHandlers) ChangeCondition(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	var req ChangeConditionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if !req.Condition.IsValid() {
		return common.SendValidationError(c, "condition", "must be one of functional, needs_maintenance, broken")
	}
	if err := common.ValidateOptionalString(req.Reason, "reason", 500); err != nil {
		return common.SendValidationError(c, "reason", err.Error())
	}

	change, err := h.conditionRouter.ChangeInstanceCondition(ctx, id, req.Condition, req.Reason, common.GetActorFromContext(ctx))
	if err != nil {
		return respondError(c, err, "change instance condition")
	}

	return c.JSON(http.StatusOK, change)
}

// maxReceiptQuantity caps how many instances one receipt may create
const maxReceiptQuantity = 10000

// ReceiveInstancesRequest represents a stock receipt for one SKU
type ReceiveInstancesRequest struct {
	Quantity        int             `json:"quantity"`
	AcquisitionDate *time.Time      `json:"acquisition_date,omitempty"`
	AcquisitionCost decimal.Decimal `json:"acquisition_cost"`
	Location        *string         `json:"location,omitempty"`
	Supplier        *string         `json:"supplier,omitempty"`
	Reference       *string         `json:"reference,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
}

// ReceiveInstances creates new available instances. The acquisition date
// defaults to now.
func (h *InstanceHandlers) ReceiveInstances(c echo.Context) error {
	skuID, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	var req ReceiveInstancesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := common.ValidatePositiveInteger(req.Quantity, "quantity", maxReceiptQuantity); err != nil {
		return common.SendValidationError(c, "quantity", err.Error())
	}

	receipt := models.InstanceReceipt{
		AcquisitionDate: time.Now().UTC(),
		AcquisitionCost: req.AcquisitionCost,
		Location:        req.Location,
		Supplier:        req.Supplier,
		Reference:       req.Reference,
		Notes:           req.Notes,
	}
	if req.AcquisitionDate != nil {
		receipt.AcquisitionDate = req.AcquisitionDate.UTC()
	}

	instances, err := h.instanceService.Receive(ctx, skuID, req.Quantity, receipt, common.GetActorFromContext(ctx))
	if err != nil {
		return respondError(c, err, "receive instances")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"instances": instances,
		"count":     len(instances),
	})
}

type DecreaseInstancesRequest struct {
	Quantity int `json:"quantity"`
}

// DecreaseInstances removes available stock, newest acquisitions first
func (h *InstanceHandlers) DecreaseInstances(c echo.Context) error {
	skuID, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	var req DecreaseInstancesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	removed, err := h.instanceService.Decrease(ctx, skuID, req.Quantity, common.GetActorFromContext(ctx))
	if err != nil {
		return respondError(c, err, "decrease instances")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"removed_instance_ids": removed,
		"count":                len(removed),
	})
}
