package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/middleware"
	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/service"
)

// RoleAdmin may place holds on behalf of a registered user.
const RoleAdmin = "ADMIN"

// HoldHandler exposes the lock manager: acquire or extend, refresh and
// release.  Identity and principal checks run in middleware.
type HoldHandler struct {
	svc HoldService
}

func NewHoldHandler(svc HoldService) *HoldHandler {
	return &HoldHandler{svc: svc}
}

type holdRequest struct {
	SeatCodes        []string `json:"seatCodes" validate:"required,min=1,dive,required"`
	TTLSeconds       int      `json:"ttlSeconds" validate:"min=0"`
	LockToken        string   `json:"lockToken" validate:"omitempty,uuid"`
	OnBehalfOfUserID string   `json:"onBehalfOfUserId"`
}

type refreshRequest struct {
	TTLSeconds int `json:"ttlSeconds" validate:"min=0"`
}

type releaseResponse struct {
	Released bool `json:"released"`
}

// AcquireOrExtend handles POST /v1/trips/:id/holds.  A new token answers
// 201 Created; reshaping an existing hold answers 200.
func (h *HoldHandler) AcquireOrExtend(c echo.Context) error {
	id, err := tripID(c)
	if err != nil {
		return err
	}
	var req holdRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	owner, err := principal(c)
	if err != nil {
		return err
	}
	if req.OnBehalfOfUserID != "" {
		if middleware.RoleFrom(c) != RoleAdmin {
			return apperror.Forbidden("only administrators may hold seats on behalf of a user")
		}
		owner = model.User(req.OnBehalfOfUserID)
	}

	res, err := h.svc.AcquireOrExtend(c.Request().Context(), service.AcquireInput{
		TripID:        id,
		SeatCodes:     req.SeatCodes,
		TTL:           seconds(req.TTLSeconds),
		Owner:         owner,
		ExistingToken: req.LockToken,
	})
	if err != nil {
		return err
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// Refresh handles POST /v1/trips/:id/holds/:token/refresh.
func (h *HoldHandler) Refresh(c echo.Context) error {
	id, err := tripID(c)
	if err != nil {
		return err
	}
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	owner, err := principal(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Refresh(c.Request().Context(), service.RefreshInput{
		TripID: id,
		Token:  c.Param("token"),
		TTL:    seconds(req.TTLSeconds),
		Owner:  owner,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Release handles DELETE /v1/trips/:id/holds/:token.  Releasing an unknown
// or lapsed token succeeds with released=false.
func (h *HoldHandler) Release(c echo.Context) error {
	id, err := tripID(c)
	if err != nil {
		return err
	}
	owner, err := principal(c)
	if err != nil {
		return err
	}
	released, err := h.svc.Release(c.Request().Context(), service.ReleaseInput{
		TripID: id,
		Token:  c.Param("token"),
		Owner:  owner,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, releaseResponse{Released: released})
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
