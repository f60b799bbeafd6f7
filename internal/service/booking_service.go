package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/repository"
	"github.com/iliyamo/bus-seat-hold/internal/seatstate"
	"github.com/iliyamo/bus-seat-hold/internal/utils"
)

// publishTimeout bounds the booking notification sent after commit.
const publishTimeout = 5 * time.Second

type FinalizeInput struct {
	TripID     uint64
	Token      string
	Owner      model.Principal
	SeatCodes  []string
	Contact    model.Contact
	Passengers []model.Passenger
}

// BookingService is the booking finalizer.  It owns the held to booked
// transition; booked seats are never written again.
type BookingService struct {
	core
	publisher BookingPublisher
}

func NewBookingService(store repository.Store, opts Options) *BookingService {
	return &BookingService{core: newCore(store, opts, "booking_service"), publisher: opts.Publisher}
}

// Finalize turns a live hold into a booking.  The hold must still be live,
// belong to the caller and cover exactly SeatCodes; otherwise nothing is
// booked.
func (s *BookingService) Finalize(ctx context.Context, in FinalizeInput) (model.BookingRef, error) {
	ref, err := s.finalize(ctx, in)
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(result(err)).Inc()
	}
	s.logFailure("finalize", err)
	return ref, err
}

func (s *BookingService) finalize(ctx context.Context, in FinalizeInput) (model.BookingRef, error) {
	if in.Owner.IsZero() {
		return model.BookingRef{}, apperror.Unauthorized("a user or guest session is required")
	}
	if _, err := uuid.Parse(in.Token); err != nil {
		return model.BookingRef{}, apperror.ValidationField("lockToken", "lockToken must be a UUID")
	}
	codes, err := normalizeCodes(in.SeatCodes)
	if err != nil {
		return model.BookingRef{}, err
	}
	passengers, err := assignPassengers(codes, in.Passengers)
	if err != nil {
		return model.BookingRef{}, err
	}

	trip, _, err := s.loadTrip(ctx, in.TripID)
	if err != nil {
		return model.BookingRef{}, err
	}
	now := s.clock.Now()
	if !trip.Bookable(now) {
		return model.BookingRef{}, apperror.TripNotBookable(trip.ID, string(trip.Status))
	}
	reference, err := utils.NewBookingReference()
	if err != nil {
		return model.BookingRef{}, fmt.Errorf("booking reference: %w", err)
	}

	var (
		booking model.Booking
		events  []model.SeatEvent
		expired bool
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.LockSeats(ctx, in.TripID, nil, in.Token)
		if err != nil {
			return err
		}
		b := seatstate.NewBatch(in.TripID, now, rows)
		if !b.Carrying(in.Token) {
			return apperror.LockExpiredOrConflicted("not_found")
		}
		if err := b.CheckOwner(in.Token, in.Owner); err != nil {
			return err
		}
		if len(b.ExpireStale()) > 0 {
			expired = true
			events = b.Events()
			return tx.SaveSeats(ctx, b.Changed())
		}

		booked, err := b.Book(in.Token, codes)
		if err != nil {
			return err
		}
		booking = model.Booking{
			ID:         uuid.NewString(),
			Reference:  reference,
			TripID:     in.TripID,
			Owner:      in.Owner,
			SeatCodes:  booked,
			Contact:    in.Contact,
			Passengers: passengers,
			CreatedAt:  now,
		}
		if err := tx.SaveSeats(ctx, b.Changed()); err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}
		events = b.Events()
		return nil
	})
	if err != nil {
		return model.BookingRef{}, txError(err, "finalize booking", codes)
	}

	s.events.Dispatch(events...)
	if expired {
		s.recordExpired("lazy", events)
		return model.BookingRef{}, apperror.LockExpiredOrConflicted("expired")
	}

	s.log.Info("booking confirmed",
		zap.String("booking_id", booking.ID),
		zap.String("reference", booking.Reference),
		zap.Uint64("trip_id", booking.TripID),
		zap.Strings("seats", booking.SeatCodes))
	s.publish(booking)
	return booking.Ref(), nil
}

// publish notifies downstream consumers in the background.  Failures are
// logged; the booking is already committed.
func (s *BookingService) publish(b model.Booking) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.publisher.PublishBookingConfirmed(ctx, b); err != nil {
			s.log.Warn("publish booking confirmed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}()
}

// assignPassengers checks that every seat has exactly one passenger and
// returns the passengers in seat order.
func assignPassengers(codes []string, passengers []model.Passenger) ([]model.Passenger, error) {
	if len(passengers) != len(codes) {
		return nil, apperror.ValidationField("passengers", "exactly one passenger per seat is required")
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	out := make([]model.Passenger, 0, len(passengers))
	for _, p := range passengers {
		p.SeatCode = strings.ToUpper(strings.TrimSpace(p.SeatCode))
		p.FullName = strings.TrimSpace(p.FullName)
		if !want[p.SeatCode] {
			return nil, apperror.ValidationField("passengers", "exactly one passenger per seat is required")
		}
		if p.FullName == "" {
			return nil, apperror.ValidationField("passengers", "passenger fullName is required")
		}
		want[p.SeatCode] = false
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatCode < out[j].SeatCode })
	return out, nil
}
