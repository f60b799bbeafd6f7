package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
)

// AdminHandler exposes operator actions.  Routes are restricted to the
// ADMIN role.
type AdminHandler struct {
	sweeper      Sweeper
	defaultLimit int
}

func NewAdminHandler(sweeper Sweeper, defaultLimit int) *AdminHandler {
	if defaultLimit <= 0 {
		defaultLimit = 500
	}
	return &AdminHandler{sweeper: sweeper, defaultLimit: defaultLimit}
}

type sweepResponse struct {
	Expired int `json:"expired"`
}

// Sweep handles POST /v1/admin/holds/sweep?limit=N and expires up to N
// lapsed seats immediately.
func (h *AdminHandler) Sweep(c echo.Context) error {
	limit := h.defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return apperror.ValidationField("limit", "limit must be a positive integer")
		}
		limit = n
	}
	n, err := h.sweeper.Sweep(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sweepResponse{Expired: n})
}
