package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/config"
	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/repository"
	"github.com/iliyamo/bus-seat-hold/internal/seatstate"
)

// AcquireInput asks for SeatCodes to be held for TTL.  With ExistingToken
// set the call extends or reshapes that hold instead of creating one.
// TTL zero selects the configured default.
type AcquireInput struct {
	TripID        uint64
	SeatCodes     []string
	TTL           time.Duration
	Owner         model.Principal
	ExistingToken string
}

type RefreshInput struct {
	TripID uint64
	Token  string
	TTL    time.Duration
	Owner  model.Principal
}

// ReleaseInput releases a hold.  A zero Owner skips the ownership check.
type ReleaseInput struct {
	TripID uint64
	Token  string
	Owner  model.Principal
}

// HoldService is the lock manager.  It owns the available/held
// transitions of seat rows.
type HoldService struct {
	core
	policy    config.HoldConfig
	scheduler ExpiryScheduler
}

func NewHoldService(store repository.Store, policy config.HoldConfig, opts Options) *HoldService {
	return &HoldService{
		core:      newCore(store, opts, "hold_service"),
		policy:    policy,
		scheduler: opts.Scheduler,
	}
}

// AcquireOrExtend holds every requested seat for the caller or fails
// without changing anything.
func (s *HoldService) AcquireOrExtend(ctx context.Context, in AcquireInput) (model.HoldResult, error) {
	op := "acquire"
	if in.ExistingToken != "" {
		op = "extend"
	}
	res, err := s.acquireOrExtend(ctx, in)
	s.record(op, err)
	return res, err
}

func (s *HoldService) acquireOrExtend(ctx context.Context, in AcquireInput) (model.HoldResult, error) {
	if in.Owner.IsZero() {
		return model.HoldResult{}, apperror.Unauthorized("a user or guest session is required")
	}
	codes, err := normalizeCodes(in.SeatCodes)
	if err != nil {
		return model.HoldResult{}, err
	}
	if s.policy.MaxSeats > 0 && len(codes) > s.policy.MaxSeats {
		return model.HoldResult{}, apperror.ValidationField("seatCodes",
			fmt.Sprintf("at most %d seats can be held at once", s.policy.MaxSeats))
	}
	ttl, err := s.ttl(in.TTL)
	if err != nil {
		return model.HoldResult{}, err
	}
	if in.ExistingToken != "" {
		if _, err := uuid.Parse(in.ExistingToken); err != nil {
			return model.HoldResult{}, apperror.ValidationField("lockToken", "lockToken must be a UUID")
		}
	}

	trip, seatMap, err := s.loadTrip(ctx, in.TripID)
	if err != nil {
		return model.HoldResult{}, err
	}
	now := s.clock.Now()
	if !trip.Bookable(now) {
		return model.HoldResult{}, apperror.TripNotBookable(trip.ID, string(trip.Status))
	}
	if err := checkSeats(seatMap, codes); err != nil {
		return model.HoldResult{}, err
	}

	var (
		res    model.HoldResult
		events []model.SeatEvent
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.EnsureSeatRows(ctx, in.TripID, codes, now); err != nil {
			return err
		}
		rows, err := tx.LockSeats(ctx, in.TripID, codes, in.ExistingToken)
		if err != nil {
			return err
		}

		b := seatstate.NewBatch(in.TripID, now, rows)
		if err := b.CheckOwner(in.ExistingToken, in.Owner); err != nil {
			return err
		}
		b.ExpireStale()

		token, created := in.ExistingToken, false
		if token == "" || len(b.Holding(token)) == 0 {
			token, created = uuid.NewString(), true
		}
		expiresAt := now.Add(ttl)
		if err := b.Hold(seatstate.HoldRequest{Token: token, Owner: in.Owner, SeatCodes: codes, ExpiresAt: expiresAt}); err != nil {
			return err
		}
		if err := tx.SaveSeats(ctx, b.Changed()); err != nil {
			return err
		}

		res = model.HoldResult{Token: token, ExpiresAt: expiresAt, HeldSeats: codes, Created: created}
		events = b.Events()
		return nil
	})
	if err != nil {
		return model.HoldResult{}, txError(err, "acquire hold", codes)
	}

	s.events.Dispatch(events...)
	s.schedule(ctx, in.TripID, res.Token, res.ExpiresAt)
	s.log.Info("seats held",
		zap.Uint64("trip_id", in.TripID),
		zap.String("owner", in.Owner.String()),
		zap.Strings("seats", codes),
		zap.Bool("created", res.Created),
		zap.Time("expires_at", res.ExpiresAt))
	return res, nil
}

// Refresh pushes the expiry of a live hold to now+TTL.  A hold that has
// already lapsed is expired, the expiry is broadcast, and LockExpired is
// returned.
func (s *HoldService) Refresh(ctx context.Context, in RefreshInput) (model.HoldResult, error) {
	res, err := s.refresh(ctx, in)
	s.record("refresh", err)
	return res, err
}

func (s *HoldService) refresh(ctx context.Context, in RefreshInput) (model.HoldResult, error) {
	if in.Owner.IsZero() {
		return model.HoldResult{}, apperror.Unauthorized("a user or guest session is required")
	}
	if _, err := uuid.Parse(in.Token); err != nil {
		return model.HoldResult{}, apperror.LockNotFound()
	}
	ttl, err := s.ttl(in.TTL)
	if err != nil {
		return model.HoldResult{}, err
	}

	now := s.clock.Now()
	var (
		res     model.HoldResult
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
			return apperror.LockNotFound()
		}
		if err := b.CheckOwner(in.Token, in.Owner); err != nil {
			return err
		}

		b.ExpireStale()
		if len(b.Holding(in.Token)) == 0 {
			// Commit the expiry; the error is reported after commit.
			expired = true
			events = b.Events()
			return tx.SaveSeats(ctx, b.Changed())
		}

		expiresAt := now.Add(ttl)
		codes, err := b.Refresh(in.Token, expiresAt)
		if err != nil {
			return err
		}
		if err := tx.SaveSeats(ctx, b.Changed()); err != nil {
			return err
		}
		res = model.HoldResult{Token: in.Token, ExpiresAt: expiresAt, HeldSeats: codes}
		events = b.Events()
		return nil
	})
	if err != nil {
		return model.HoldResult{}, txError(err, "refresh hold", nil)
	}

	s.events.Dispatch(events...)
	if expired {
		s.recordExpired("lazy", events)
		return model.HoldResult{}, apperror.LockExpired()
	}
	s.schedule(ctx, in.TripID, res.Token, res.ExpiresAt)
	return res, nil
}

// Release frees a hold.  It reports false, without error, when the token
// is unknown, expired or already consumed.
func (s *HoldService) Release(ctx context.Context, in ReleaseInput) (bool, error) {
	released, err := s.release(ctx, in)
	s.record("release", err)
	return released, err
}

func (s *HoldService) release(ctx context.Context, in ReleaseInput) (bool, error) {
	if _, err := uuid.Parse(in.Token); err != nil {
		return false, nil
	}

	now := s.clock.Now()
	var (
		released bool
		events   []model.SeatEvent
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.LockSeats(ctx, in.TripID, nil, in.Token)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		b := seatstate.NewBatch(in.TripID, now, rows)
		b.ExpireStale()
		if !in.Owner.IsZero() {
			if err := b.CheckOwner(in.Token, in.Owner); err != nil {
				return err
			}
		}
		released = len(b.Release(in.Token)) > 0
		events = b.Events()
		return tx.SaveSeats(ctx, b.Changed())
	})
	if err != nil {
		return false, txError(err, "release hold", nil)
	}

	s.events.Dispatch(events...)
	return released, nil
}

func (s *HoldService) ttl(d time.Duration) (time.Duration, error) {
	if d == 0 {
		return s.policy.DefaultTTL, nil
	}
	if d < s.policy.MinTTL || d > s.policy.MaxTTL {
		return 0, apperror.ValidationField("ttlSeconds", fmt.Sprintf("ttlSeconds must be between %d and %d",
			int(s.policy.MinTTL/time.Second), int(s.policy.MaxTTL/time.Second)))
	}
	return d, nil
}

func (s *HoldService) schedule(ctx context.Context, tripID uint64, token string, at time.Time) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleExpiry(ctx, tripID, token, at); err != nil {
		s.log.Warn("schedule hold expiry", zap.Uint64("trip_id", tripID), zap.Error(err))
	}
}

func (s *HoldService) record(op string, err error) {
	if s.metrics != nil {
		s.metrics.HoldsTotal.WithLabelValues(op, result(err)).Inc()
	}
	s.logFailure(op, err)
}
