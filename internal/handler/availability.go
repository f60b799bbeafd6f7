package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type AvailabilityHandler struct {
	svc AvailabilityService
}

func NewAvailabilityHandler(svc AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc}
}

// Get handles GET /v1/trips/:id/availability.  Seats held under the
// optional ?lockToken are reported as "mine".
func (h *AvailabilityHandler) Get(c echo.Context) error {
	id, err := tripID(c)
	if err != nil {
		return err
	}
	av, err := h.svc.GetAvailability(c.Request().Context(), id, c.QueryParam("lockToken"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, av)
}
