// Package service implements the seat hold engine on top of a
// repository.Store: the lock manager (HoldService), the expiry mechanism
// (Expirer), the availability projector (AvailabilityService) and the
// booking finalizer (BookingService).
//
// Every mutation runs in one store transaction that locks the affected seat
// rows in seat code order, applies seatstate transitions and persists the
// changed rows.  Events are handed to the dispatcher only after the
// transaction has committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/metrics"
	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/repository"
	"github.com/iliyamo/bus-seat-hold/internal/seatstate"
)

// Clock is the time source every expiry decision is made against.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// EventDispatcher receives committed seat events.  Dispatch must not block.
type EventDispatcher interface {
	Dispatch(events ...model.SeatEvent)
}

// ExpiryScheduler arranges for a hold to be expired promptly at its expiry
// instant.  The sweep remains the safety net when scheduling fails.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, tripID uint64, token string, at time.Time) error
}

// BookingPublisher notifies downstream systems of a confirmed booking.
type BookingPublisher interface {
	PublishBookingConfirmed(ctx context.Context, b model.Booking) error
}

// Options carries the collaborators shared by the services.  Nil fields
// fall back to the system clock, a no-op dispatcher and a no-op logger.
type Options struct {
	Clock      Clock
	Dispatcher EventDispatcher
	Scheduler  ExpiryScheduler
	Publisher  BookingPublisher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(...model.SeatEvent) {}

// core is embedded by every service.
type core struct {
	store   repository.Store
	clock   Clock
	events  EventDispatcher
	metrics *metrics.Metrics
	log     *zap.Logger
}

func newCore(store repository.Store, opts Options, component string) core {
	c := core{
		store:   store,
		clock:   opts.Clock,
		events:  opts.Dispatcher,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.events == nil {
		c.events = nopDispatcher{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.With(zap.String("component", component))
	return c
}

// loadTrip returns the trip and its seat map.
func (c *core) loadTrip(ctx context.Context, tripID uint64) (model.Trip, model.SeatMap, error) {
	trip, err := c.store.Trip(ctx, tripID)
	if errors.Is(err, repository.ErrTripNotFound) {
		return model.Trip{}, model.SeatMap{}, apperror.TripNotFound(tripID)
	}
	if err != nil {
		return model.Trip{}, model.SeatMap{}, fmt.Errorf("load trip %d: %w", tripID, err)
	}
	seatMap, err := c.store.SeatMap(ctx, trip.SeatMapID)
	if err != nil {
		return model.Trip{}, model.SeatMap{}, fmt.Errorf("load seat map %d of trip %d: %w", trip.SeatMapID, tripID, err)
	}
	return trip, seatMap, nil
}

// txError maps a failed seat transaction.  Lock waits that time out mean
// another request holds the rows, which callers see as a seat conflict.
func txError(err error, op string, codes []string) error {
	if errors.Is(err, repository.ErrLockTimeout) {
		return apperror.SeatConflict(codes)
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// normalizeCodes trims and upper-cases codes and returns them sorted and
// deduplicated.
func normalizeCodes(codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, apperror.ValidationField("seatCodes", "at least one seat code is required")
	}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			return nil, apperror.ValidationField("seatCodes", "seat codes must not be empty")
		}
		out = append(out, c)
	}
	return seatstate.SortedUnique(out), nil
}

// checkSeats rejects codes missing from the map and inactive seats.
func checkSeats(seatMap model.SeatMap, codes []string) error {
	idx := seatMap.Index()
	var missing, inactive []string
	for _, code := range codes {
		def, ok := idx[code]
		switch {
		case !ok:
			missing = append(missing, code)
		case !def.IsActive:
			inactive = append(inactive, code)
		}
	}
	if len(missing) > 0 {
		return apperror.SeatNotFound(missing)
	}
	if len(inactive) > 0 {
		return apperror.SeatInactive(inactive)
	}
	return nil
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return apperror.CodeOf(err)
}

// logFailure logs errors a client cannot cause.  Domain errors are the
// normal outcome of contention and are not logged.
func (c *core) logFailure(op string, err error) {
	if err == nil {
		return
	}
	if ae, ok := apperror.As(err); ok && ae.Kind() != apperror.KindInternal {
		return
	}
	c.log.Error("operation failed", zap.String("op", op), zap.Error(err))
}

func (c *core) recordExpired(source string, events []model.SeatEvent) {
	if c.metrics == nil {
		return
	}
	n := 0
	for _, ev := range events {
		if ev.Type == model.EventSeatReleased {
			n += len(ev.SeatCodes)
		}
	}
	if n > 0 {
		c.metrics.ExpiredSeatsTotal.WithLabelValues(source).Add(float64(n))
	}
}
