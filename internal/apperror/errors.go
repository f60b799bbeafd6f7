// Package apperror defines the error taxonomy surfaced to API callers.
// Every error a client may act on is an *AppError carrying a stable code;
// anything else is an internal failure.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeSeatNotFound            = "SEAT_NOT_FOUND"
	CodeSeatInactive            = "SEAT_INACTIVE"
	CodeSeatConflict            = "SEAT_CONFLICT"
	CodeTripNotFound            = "TRIP_NOT_FOUND"
	CodeTripNotBookable         = "TRIP_NOT_BOOKABLE"
	CodeLockNotFound            = "LOCK_NOT_FOUND"
	CodeLockExpired             = "LOCK_EXPIRED"
	CodeOwnershipMismatch       = "OWNERSHIP_MISMATCH"
	CodeLockExpiredOrConflicted = "LOCK_EXPIRED_OR_CONFLICTED"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternal                = "INTERNAL_ERROR"
)

// Kind groups codes by how a client can recover from them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindLock       Kind = "expiry_ownership"
	KindTripState  Kind = "trip_state"
	KindAuth       Kind = "auth"
	KindInternal   Kind = "internal"
)

var kinds = map[string]Kind{
	CodeValidation:              KindValidation,
	CodeSeatNotFound:            KindValidation,
	CodeSeatInactive:            KindConflict,
	CodeSeatConflict:            KindConflict,
	CodeTripNotFound:            KindTripState,
	CodeTripNotBookable:         KindTripState,
	CodeLockNotFound:            KindLock,
	CodeLockExpired:             KindLock,
	CodeOwnershipMismatch:       KindLock,
	CodeLockExpiredOrConflicted: KindLock,
	CodeUnauthorized:            KindAuth,
	CodeForbidden:               KindAuth,
	CodeRateLimited:             KindAuth,
}

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

// Kind returns the recovery class of the error.
func (e *AppError) Kind() Kind {
	if k, ok := kinds[e.Code]; ok {
		return k
	}
	return KindInternal
}

// Is matches another *AppError by code so callers can write
// errors.Is(err, apperror.SeatConflict(nil)).
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ErrorResponse is the JSON envelope written for every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Response() ErrorResponse {
	return ErrorResponse{Code: e.Code, Message: e.Message, Details: e.Details}
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// As extracts an *AppError from err.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal when err is not an
// *AppError.
func CodeOf(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return CodeInternal
}

func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ValidationField(field, message string) *AppError {
	return Validation(message).WithDetails(map[string]any{"field": field})
}

func SeatNotFound(seats []string) *AppError {
	return New(CodeSeatNotFound, "unknown seat codes", http.StatusBadRequest).
		WithDetails(map[string]any{"seats": seats})
}

func SeatInactive(seats []string) *AppError {
	return New(CodeSeatInactive, "seats are not in service", http.StatusConflict).
		WithDetails(map[string]any{"seats": seats})
}

// SeatConflict names the seats that are held or booked by someone else.
func SeatConflict(seats []string) *AppError {
	return New(CodeSeatConflict, "seats are no longer available", http.StatusConflict).
		WithDetails(map[string]any{"seats": seats})
}

func TripNotFound(tripID uint64) *AppError {
	return New(CodeTripNotFound, "trip not found", http.StatusNotFound).
		WithDetails(map[string]any{"tripId": tripID})
}

func TripNotBookable(tripID uint64, status string) *AppError {
	return New(CodeTripNotBookable, "trip is not open for booking", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"tripId": tripID, "status": status})
}

func LockNotFound() *AppError {
	return New(CodeLockNotFound, "hold not found", http.StatusNotFound)
}

func LockExpired() *AppError {
	return New(CodeLockExpired, "hold has expired", http.StatusGone)
}

func OwnershipMismatch() *AppError {
	return New(CodeOwnershipMismatch, "hold belongs to another principal", http.StatusForbidden)
}

// LockExpiredOrConflicted is returned by finalize when the hold cannot be
// turned into a booking.  reason is one of "not_found", "expired" or
// "seat_set_mismatch".
func LockExpiredOrConflicted(reason string) *AppError {
	return New(CodeLockExpiredOrConflicted, "hold expired or no longer matches the requested seats", http.StatusConflict).
		WithDetails(map[string]any{"reason": reason})
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func Internal(err error) *AppError {
	return Wrap(err, CodeInternal, "internal server error", http.StatusInternalServerError)
}
