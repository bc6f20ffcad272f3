package handlers

import (
	"net/http"

	"stockroom/internal/services"

	"github.com/labstack/echo/v4"
)

// SKUHandlers serves derived availability for SKUs
type SKUHandlers struct {
	availabilityService services.AvailabilityService
}

func NewSKUHandlers(availabilityService services.AvailabilityService) *SKUHandlers {
	return &SKUHandlers{availabilityService: availabilityService}
}

// GetAvailability is always computed from instance ownership
func (h *SKUHandlers) GetAvailability(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}

	availability, err := h.availabilityService.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, "get availability")
	}

	return c.JSON(http.StatusOK, availability)
}

// GetSummary may be served from the summary cache
func (h *SKUHandlers) GetSummary(c echo.Context) error {
	id, ok, err := pathUUID(c, "id")
	if !ok {
		return err
	}

	summary, err := h.availabilityService.GetSummary(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err, "get inventory summary")
	}

	return c.JSON(http.StatusOK, summary)
}
