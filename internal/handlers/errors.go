package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"stockroom/internal/common"
	"stockroom/internal/repositories"
	"stockroom/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// respondError maps service errors onto HTTP responses. Unknown errors are
// logged and reported as 500 without their message.
func respondError(c echo.Context, err error, action string) error {
	var (
		stockErr     *services.InsufficientStockError
		bundleErr    *services.InvalidBundleError
		stateErr     *services.InvalidStateError
		selectionErr *services.InvalidSelectionError
		validErr     *services.ValidationError
		conflictErr  *services.BindConflictError
	)

	switch {
	case errors.As(err, &stockErr):
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("INSUFFICIENT_STOCK", stockErr.Error(), map[string]string{
			"sku_id":    stockErr.SkuID.String(),
			"requested": strconv.Itoa(stockErr.Requested),
			"available": strconv.Itoa(stockErr.Available),
		}))
	case errors.As(err, &validErr):
		return common.SendValidationError(c, validErr.Field, validErr.Message)
	case errors.As(err, &selectionErr):
		return c.JSON(http.StatusBadRequest, common.CreateErrorResponse("INVALID_SELECTION", selectionErr.Error(), nil))
	case errors.As(err, &bundleErr):
		return c.JSON(http.StatusUnprocessableEntity, common.CreateErrorResponse("INVALID_BUNDLE", bundleErr.Error(), nil))
	case errors.As(err, &stateErr):
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("INVALID_STATE", stateErr.Error(), nil))
	case errors.As(err, &conflictErr),
		errors.Is(err, repositories.ErrVersionConflict),
		errors.Is(err, repositories.ErrOwnershipConflict):
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("CONFLICT", "Concurrent modification, retry the request", nil))
	case errors.Is(err, services.ErrDomainMismatch),
		errors.Is(err, services.ErrNotLendable),
		errors.Is(err, services.ErrSKUInactive):
		return c.JSON(http.StatusUnprocessableEntity, common.CreateErrorResponse("UNPROCESSABLE", err.Error(), nil))
	case errors.Is(err, repositories.ErrNotFound):
		return c.JSON(http.StatusNotFound, common.CreateErrorResponse("NOT_FOUND", err.Error(), nil))
	}

	log.Printf("Failed to %s: %v", action, err)
	return common.SendServerError(c, "Failed to "+action)
}

// pathUUID parses a UUID route parameter, writing a 400 on failure
func pathUUID(c echo.Context, name string) (uuid.UUID, bool, error) {
	parsed, perr := common.ValidateUUID(c.Param(name), name)
	if perr != nil {
		return parsed, false, common.SendValidationError(c, name, perr.Error())
	}
	return parsed, true, nil
}
