package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
)

// NewErrorHandler renders every error as {code, message, details?}.
// AppErrors pass through verbatim; echo errors keep their status; anything
// else is logged and reported as INTERNAL_ERROR.
func NewErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		resp, status := toResponse(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.Int("status", status),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, resp)
		}
		if err != nil {
			log.Error("write error response", zap.Error(err))
		}
	}
}

func toResponse(err error) (apperror.ErrorResponse, int) {
	if ae, ok := apperror.As(err); ok {
		if ae.Kind() == apperror.KindInternal {
			return apperror.ErrorResponse{Code: apperror.CodeInternal, Message: "internal server error"}, ae.StatusCode()
		}
		return ae.Response(), ae.StatusCode()
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return apperror.ErrorResponse{Code: httpCode(he.Code), Message: msg}, he.Code
	}

	return apperror.ErrorResponse{Code: apperror.CodeInternal, Message: "internal server error"}, http.StatusInternalServerError
}

// httpCode maps framework statuses (bad JSON, unknown route) onto the
// closest error code.
func httpCode(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return apperror.CodeUnauthorized
	case status == http.StatusForbidden:
		return apperror.CodeForbidden
	case status == http.StatusTooManyRequests:
		return apperror.CodeRateLimited
	case status == http.StatusNotFound:
		return "NOT_FOUND"
	case status == http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case status >= 500:
		return apperror.CodeInternal
	default:
		return apperror.CodeValidation
	}
}
