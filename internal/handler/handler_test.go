package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/middleware"
	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/service"
	"github.com/iliyamo/bus-seat-hold/internal/utils"
)

const (
	jwtSecret = "handler-secret"
	guestID   = "g1-session"
	token     = "6f1c1b8e-3d7a-4a53-9d7f-2f0a8c9b1e21"
)

type MockHoldService struct{ mock.Mock }

func (m *MockHoldService) AcquireOrExtend(ctx context.Context, in service.AcquireInput) (model.HoldResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.HoldResult), args.Error(1)
}

func (m *MockHoldService) Refresh(ctx context.Context, in service.RefreshInput) (model.HoldResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.HoldResult), args.Error(1)
}

func (m *MockHoldService) Release(ctx context.Context, in service.ReleaseInput) (bool, error) {
	args := m.Called(ctx, in)
	return args.Bool(0), args.Error(1)
}

type MockAvailabilityService struct{ mock.Mock }

func (m *MockAvailabilityService) GetAvailability(ctx context.Context, tripID uint64, callerToken string) (model.Availability, error) {
	args := m.Called(ctx, tripID, callerToken)
	return args.Get(0).(model.Availability), args.Error(1)
}

type MockBookingService struct{ mock.Mock }

func (m *MockBookingService) Finalize(ctx context.Context, in service.FinalizeInput) (model.BookingRef, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.BookingRef), args.Error(1)
}

type MockSweeper struct{ mock.Mock }

func (m *MockSweeper) Sweep(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = NewErrorHandler(zap.NewNop())
	return e
}

type call struct {
	method  string
	target  string
	body    string
	params  map[string]string
	headers map[string]string
}

// serve runs h behind the identity middleware and renders any error
// through the error handler, as the router would.
func serve(t *testing.T, h echo.HandlerFunc, in call) *httptest.ResponseRecorder {
	t.Helper()
	e := newTestEcho()
	req := httptest.NewRequest(in.method, in.target, strings.NewReader(in.body))
	if in.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range in.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	names := make([]string, 0, len(in.params))
	values := make([]string, 0, len(in.params))
	for k, v := range in.params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)

	if err := middleware.Identity(jwtSecret)(h)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func guest() map[string]string {
	return map[string]string{middleware.HeaderGuestSession: guestID}
}

func bearer(t *testing.T, sub, role string) map[string]string {
	t.Helper()
	tok, err := utils.NewAccessToken(jwtSecret, sub, role, time.Hour)
	require.NoError(t, err)
	return map[string]string{echo.HeaderAuthorization: "Bearer " + tok}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperror.ErrorResponse {
	t.Helper()
	var resp apperror.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

var trip42 = map[string]string{"id": "42"}

func TestHoldHandler_AcquireOrExtend(t *testing.T) {
	expires := time.Date(2026, 3, 1, 8, 15, 0, 0, time.UTC)

	t.Run("new hold answers 201", func(t *testing.T) {
		svc := new(MockHoldService)
		svc.On("AcquireOrExtend", mock.Anything, service.AcquireInput{
			TripID:    42,
			SeatCodes: []string{"A1", "A2"},
			TTL:       900 * time.Second,
			Owner:     model.Guest(guestID),
		}).Return(model.HoldResult{Token: token, ExpiresAt: expires, HeldSeats: []string{"A1", "A2"}, Created: true}, nil)

		rec := serve(t, NewHoldHandler(svc).AcquireOrExtend, call{
			method: http.MethodPost, target: "/v1/trips/42/holds", params: trip42, headers: guest(),
			body: `{"seatCodes":["A1","A2"],"ttlSeconds":900}`,
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		var res model.HoldResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, token, res.Token)
		assert.Equal(t, []string{"A1", "A2"}, res.HeldSeats)
		assert.True(t, res.ExpiresAt.Equal(expires))
		svc.AssertExpectations(t)
	})

	t.Run("extend answers 200", func(t *testing.T) {
		svc := new(MockHoldService)
		svc.On("AcquireOrExtend", mock.Anything, mock.MatchedBy(func(in service.AcquireInput) bool {
			return in.ExistingToken == token
		})).Return(model.HoldResult{Token: token, ExpiresAt: expires, HeldSeats: []string{"A1"}}, nil)

		rec := serve(t, NewHoldHandler(svc).AcquireOrExtend, call{
			method: http.MethodPost, target: "/v1/trips/42/holds", params: trip42, headers: guest(),
			body: `{"seatCodes":["A1"],"lockToken":"` + token + `"}`,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("conflict is rendered with seats", func(t *testing.T) {
		svc := new(MockHoldService)
		svc.On("AcquireOrExtend", mock.Anything, mock.Anything).
			Return(model.HoldResult{}, apperror.SeatConflict([]string{"A1"}))

		rec := serve(t, NewHoldHandler(svc).AcquireOrExtend, call{
			method: http.MethodPost, target: "/v1/trips/42/holds", params: trip42, headers: guest(),
			body: `{"seatCodes":["A1"]}`,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, apperror.CodeSeatConflict, resp.Code)
		assert.Equal(t, []interface{}{"A1"}, resp.Details["seats"])
	})

	t.Run("admin holds on behalf of a user", func(t *testing.T) {
		svc := new(MockHoldService)
		svc.On("AcquireOrExtend", mock.Anything, mock.MatchedBy(func(in service.AcquireInput) bool {
			return in.Owner == model.User("u-77")
		})).Return(model.HoldResult{Token: token, Created: true}, nil)

		rec := serve(t, NewHoldHandler(svc).AcquireOrExtend, call{
			method: http.MethodPost, target: "/v1/trips/42/holds", params: trip42, headers: bearer(t, "admin-1", RoleAdmin),
			body: `{"seatCodes":["A1"],"onBehalfOfUserId":"u-77"}`,
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("non admin cannot act on behalf", func(t *testing.T) {
		svc := new(MockHoldService)
		rec := serve(t, NewHoldHandler(svc).AcquireOrExtend, call{
			method: http.MethodPost, target: "/v1/trips/42/holds", params: trip42, headers: guest(),
			body: `{"seatCodes":["A1"],"onBehalfOfUserId":"u-77"}`,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, apperror.CodeForbidden, decodeError(t, rec).Code)
		svc.AssertNotCalled(t, "AcquireOrExtend", mock.Anything, mock.Anything)
	})

	tests := []struct {
		name    string
		params  map[string]string
		headers map[string]string
		body    string
		status  int
		code    string
	}{
		{"anonymous", trip42, nil, `{"seatCodes":["A1"]}`, http.StatusUnauthorized, apperror.CodeUnauthorized},
		{"empty seat list", trip42, guest(), `{"seatCodes":[]}`, http.StatusBadRequest, apperror.CodeValidation},
		{"negative ttl", trip42, guest(), `{"seatCodes":["A1"],"ttlSeconds":-5}`, http.StatusBadRequest, apperror.CodeValidation},
		{"malformed token", trip42, guest(), `{"seatCodes":["A1"],"lockToken":"nope"}`, http.StatusBadRequest, apperror.CodeValidation},
		{"bad json", trip42, guest(), `{"seatCodes":`, http.StatusBadRequest, apperror.CodeValidation},
		{"bad trip id", map[string]string{"id": "x"}, guest(), `{"seatCodes":["A1"]}`, http.StatusBadRequest, apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockHoldService)
			rec := serve(t, NewHoldHandler(svc).AcquireOrExtend, call{
				method: http.MethodPost, target: "/v1/trips/42/holds", params: tt.params, headers: tt.headers, body: tt.body,
			})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
			svc.AssertNotCalled(t, "AcquireOrExtend", mock.Anything, mock.Anything)
		})
	}
}

func TestHoldHandler_Refresh(t *testing.T) {
	svc := new(MockHoldService)
	svc.On("Refresh", mock.Anything, service.RefreshInput{
		TripID: 42, Token: token, TTL: 600 * time.Second, Owner: model.Guest(guestID),
	}).Return(model.HoldResult{Token: token, HeldSeats: []string{"A1"}}, nil)

	rec := serve(t, NewHoldHandler(svc).Refresh, call{
		method: http.MethodPost, target: "/v1/trips/42/holds/" + token + "/refresh",
		params: map[string]string{"id": "42", "token": token}, headers: guest(),
		body: `{"ttlSeconds":600}`,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)

	svc = new(MockHoldService)
	svc.On("Refresh", mock.Anything, mock.Anything).Return(model.HoldResult{}, apperror.LockExpired())
	rec = serve(t, NewHoldHandler(svc).Refresh, call{
		method: http.MethodPost, target: "/v1/trips/42/holds/" + token + "/refresh",
		params: map[string]string{"id": "42", "token": token}, headers: guest(),
		body: `{}`,
	})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, apperror.CodeLockExpired, decodeError(t, rec).Code)
}

func TestHoldHandler_Release(t *testing.T) {
	for _, released := range []bool{true, false} {
		svc := new(MockHoldService)
		svc.On("Release", mock.Anything, service.ReleaseInput{TripID: 42, Token: token, Owner: model.Guest(guestID)}).
			Return(released, nil)

		rec := serve(t, NewHoldHandler(svc).Release, call{
			method: http.MethodDelete, target: "/v1/trips/42/holds/" + token,
			params: map[string]string{"id": "42", "token": token}, headers: guest(),
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		var body releaseResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, released, body.Released)
	}
}

func TestAvailabilityHandler_Get(t *testing.T) {
	svc := new(MockAvailabilityService)
	av := model.Availability{
		Trip:    model.Trip{ID: 42},
		SeatMap: model.Geometry{Rows: 10, Cols: 4},
		Seats: []model.SeatView{
			{Code: "A1", Row: 1, Col: 1, Status: model.ViewMine},
			{Code: "A2", Row: 1, Col: 2, Status: model.ViewHeld},
		},
	}
	svc.On("GetAvailability", mock.Anything, uint64(42), token).Return(av, nil)

	// reads are open to anonymous callers
	rec := serve(t, NewAvailabilityHandler(svc).Get, call{
		method: http.MethodGet, target: "/v1/trips/42/availability?lockToken=" + token, params: trip42,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"mine"`)
	assert.Contains(t, rec.Body.String(), `"seatMap":{"rows":10,"cols":4}`)

	svc = new(MockAvailabilityService)
	svc.On("GetAvailability", mock.Anything, uint64(42), "").Return(model.Availability{}, apperror.TripNotFound(42))
	rec = serve(t, NewAvailabilityHandler(svc).Get, call{
		method: http.MethodGet, target: "/v1/trips/42/availability", params: trip42,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.CodeTripNotFound, decodeError(t, rec).Code)
}

func TestBookingHandler_Finalize(t *testing.T) {
	body := `{
		"lockToken": "` + token + `",
		"seatCodes": ["A1", "A2"],
		"contact": {"name": "Ana Ruiz", "email": "ana@example.com"},
		"passengers": [
			{"seatCode": "A1", "fullName": "Ana Ruiz"},
			{"seatCode": "A2", "fullName": "Leo Ruiz", "documentNo": "X123"}
		]
	}`

	t.Run("created", func(t *testing.T) {
		svc := new(MockBookingService)
		svc.On("Finalize", mock.Anything, service.FinalizeInput{
			TripID:    42,
			Token:     token,
			Owner:     model.Guest(guestID),
			SeatCodes: []string{"A1", "A2"},
			Contact:   model.Contact{Name: "Ana Ruiz", Email: "ana@example.com"},
			Passengers: []model.Passenger{
				{SeatCode: "A1", FullName: "Ana Ruiz"},
				{SeatCode: "A2", FullName: "Leo Ruiz", DocumentNo: "X123"},
			},
		}).Return(model.BookingRef{ID: "b-1", Reference: "BK7Q2M9X", TripID: 42, SeatCodes: []string{"A1", "A2"}}, nil)

		rec := serve(t, NewBookingHandler(svc).Finalize, call{
			method: http.MethodPost, target: "/v1/trips/42/bookings", params: trip42, headers: guest(), body: body,
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"reference":"BK7Q2M9X"`)
		svc.AssertExpectations(t)
	})

	t.Run("lapsed hold", func(t *testing.T) {
		svc := new(MockBookingService)
		svc.On("Finalize", mock.Anything, mock.Anything).
			Return(model.BookingRef{}, apperror.LockExpiredOrConflicted("expired"))

		rec := serve(t, NewBookingHandler(svc).Finalize, call{
			method: http.MethodPost, target: "/v1/trips/42/bookings", params: trip42, headers: guest(), body: body,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, apperror.CodeLockExpiredOrConflicted, resp.Code)
		assert.Equal(t, "expired", resp.Details["reason"])
	})

	t.Run("invalid contact", func(t *testing.T) {
		svc := new(MockBookingService)
		rec := serve(t, NewBookingHandler(svc).Finalize, call{
			method: http.MethodPost, target: "/v1/trips/42/bookings", params: trip42, headers: guest(),
			body: `{"lockToken":"` + token + `","seatCodes":["A1"],"contact":{"name":"Ana","email":"not-an-email"},"passengers":[{"seatCode":"A1","fullName":"Ana"}]}`,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, apperror.CodeValidation, resp.Code)
		fields, ok := resp.Details["fields"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "invalid email format", fields["contact.email"])
		svc.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything)
	})
}

func TestAdminHandler_Sweep(t *testing.T) {
	sw := new(MockSweeper)
	sw.On("Sweep", mock.Anything, 500).Return(3, nil).Once()
	sw.On("Sweep", mock.Anything, 20).Return(0, nil).Once()
	h := NewAdminHandler(sw, 0)

	rec := serve(t, h.Sweep, call{method: http.MethodPost, target: "/v1/admin/holds/sweep"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"expired":3}`, rec.Body.String())

	rec = serve(t, h.Sweep, call{method: http.MethodPost, target: "/v1/admin/holds/sweep?limit=20"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h.Sweep, call{method: http.MethodPost, target: "/v1/admin/holds/sweep?limit=-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	sw.AssertExpectations(t)
}

func TestHealthHandler_Check(t *testing.T) {
	rec := serve(t, NewHealthHandler(stubPinger{}).Check, call{method: http.MethodGet, target: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = serve(t, NewHealthHandler(stubPinger{err: errors.New("connection refused")}).Check, call{method: http.MethodGet, target: "/healthz"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unavailable"`)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error", apperror.OwnershipMismatch(), http.StatusForbidden, apperror.CodeOwnershipMismatch},
		{"wrapped app error", errors.Join(errors.New("ctx"), apperror.TripNotBookable(42, "DEPARTED")), http.StatusUnprocessableEntity, apperror.CodeTripNotBookable},
		{"echo not found", echo.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"plain error", errors.New("db exploded"), http.StatusInternalServerError, apperror.CodeInternal},
		{"internal app error", apperror.Internal(errors.New("db exploded")), http.StatusInternalServerError, apperror.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			e.HTTPErrorHandler(tt.err, c)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotContains(t, rec.Body.String(), "db exploded")
		})
	}
}
