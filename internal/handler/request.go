package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/middleware"
	"github.com/iliyamo/bus-seat-hold/internal/model"
)

// tripID parses the :id path parameter.
func tripID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.ValidationField("id", "trip id must be a positive integer")
	}
	return id, nil
}

// bindAndValidate decodes the JSON body into dst and runs struct
// validation.
func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperror.Validation("invalid request body")
	}
	return c.Validate(dst)
}

// principal returns the caller resolved by the identity middleware.
func principal(c echo.Context) (model.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return model.Principal{}, apperror.Unauthorized("a bearer token or X-Guest-Session header is required")
	}
	return p, nil
}
