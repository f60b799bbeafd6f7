package handler

import (
	"context"

	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/service"
)

// HoldService is the lock manager as seen by the HTTP layer.
type HoldService interface {
	AcquireOrExtend(ctx context.Context, in service.AcquireInput) (model.HoldResult, error)
	Refresh(ctx context.Context, in service.RefreshInput) (model.HoldResult, error)
	Release(ctx context.Context, in service.ReleaseInput) (bool, error)
}

type AvailabilityService interface {
	GetAvailability(ctx context.Context, tripID uint64, callerToken string) (model.Availability, error)
}

type BookingService interface {
	Finalize(ctx context.Context, in service.FinalizeInput) (model.BookingRef, error)
}

// Sweeper expires lapsed holds on demand.
type Sweeper interface {
	Sweep(ctx context.Context, limit int) (int, error)
}

// Pinger reports whether the seat store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ HoldService         = (*service.HoldService)(nil)
	_ AvailabilityService = (*service.AvailabilityService)(nil)
	_ BookingService      = (*service.BookingService)(nil)
	_ Sweeper             = (*service.Expirer)(nil)
)
