package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/service"
)

type BookingHandler struct {
	svc BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

type contactRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type passengerRequest struct {
	SeatCode   string `json:"seatCode" validate:"required"`
	FullName   string `json:"fullName" validate:"required,max=120"`
	DocumentNo string `json:"documentNo" validate:"omitempty,max=64"`
}

type bookingRequest struct {
	LockToken  string             `json:"lockToken" validate:"required"`
	SeatCodes  []string           `json:"seatCodes" validate:"required,min=1,dive,required"`
	Contact    contactRequest     `json:"contact"`
	Passengers []passengerRequest `json:"passengers" validate:"required,min=1,dive"`
}

// Finalize handles POST /v1/trips/:id/bookings and answers 201 with the
// booking reference.
func (h *BookingHandler) Finalize(c echo.Context) error {
	id, err := tripID(c)
	if err != nil {
		return err
	}
	var req bookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	owner, err := principal(c)
	if err != nil {
		return err
	}

	passengers := make([]model.Passenger, 0, len(req.Passengers))
	for _, p := range req.Passengers {
		passengers = append(passengers, model.Passenger{SeatCode: p.SeatCode, FullName: p.FullName, DocumentNo: p.DocumentNo})
	}
	ref, err := h.svc.Finalize(c.Request().Context(), service.FinalizeInput{
		TripID:     id,
		Token:      req.LockToken,
		Owner:      owner,
		SeatCodes:  req.SeatCodes,
		Contact:    model.Contact{Name: req.Contact.Name, Email: req.Contact.Email, Phone: req.Contact.Phone},
		Passengers: passengers,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ref)
}
