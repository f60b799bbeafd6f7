package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/repository"
	"github.com/iliyamo/bus-seat-hold/internal/seatstate"
)

// lazyLimit caps the rows one lazy expiry pass touches; a coach has far
// fewer seats.
const lazyLimit = 500

// Expirer returns lapsed holds to available.  It is driven three ways:
// lazily before availability reads, by the periodic sweep and by per-hold
// expiry tasks.
type Expirer struct {
	core
}

func NewExpirer(store repository.Store, opts Options) *Expirer {
	return &Expirer{core: newCore(store, opts, "expirer")}
}

// Sweep expires up to limit lapsed seats across all trips and returns how
// many were released.  Rows locked by in-flight requests are skipped; the
// request that holds them applies the same correction.
func (e *Expirer) Sweep(ctx context.Context, limit int) (int, error) {
	return e.expire(ctx, 0, limit, "sweep")
}

// ExpireTrip expires every lapsed seat of one trip.
func (e *Expirer) ExpireTrip(ctx context.Context, tripID uint64) (int, error) {
	return e.expire(ctx, tripID, lazyLimit, "lazy")
}

// ExpireToken expires the hold identified by token if it has lapsed.  A
// hold that was refreshed, released or booked in the meantime is left
// alone.
func (e *Expirer) ExpireToken(ctx context.Context, tripID uint64, token string) (int, error) {
	now := e.clock.Now()
	var events []model.SeatEvent
	err := e.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.LockSeats(ctx, tripID, nil, token)
		if err != nil || len(rows) == 0 {
			return err
		}
		b := seatstate.NewBatch(tripID, now, rows)
		b.ExpireStale()
		events = b.Events()
		return tx.SaveSeats(ctx, b.Changed())
	})
	if err != nil {
		return 0, fmt.Errorf("expire hold %s: %w", token, err)
	}
	return e.finish("task", events), nil
}

func (e *Expirer) expire(ctx context.Context, tripID uint64, limit int, source string) (int, error) {
	now := e.clock.Now()
	var events []model.SeatEvent
	err := e.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.LockExpired(ctx, tripID, now, limit)
		if err != nil || len(rows) == 0 {
			return err
		}

		byTrip := make(map[uint64][]model.SeatState)
		for _, r := range rows {
			byTrip[r.TripID] = append(byTrip[r.TripID], r)
		}
		trips := make([]uint64, 0, len(byTrip))
		for id := range byTrip {
			trips = append(trips, id)
		}
		sort.Slice(trips, func(i, j int) bool { return trips[i] < trips[j] })

		var changed []model.SeatState
		for _, id := range trips {
			b := seatstate.NewBatch(id, now, byTrip[id])
			b.ExpireStale()
			changed = append(changed, b.Changed()...)
			events = append(events, b.Events()...)
		}
		return tx.SaveSeats(ctx, changed)
	})
	if err != nil {
		return 0, fmt.Errorf("expire holds (%s): %w", source, err)
	}
	return e.finish(source, events), nil
}

func (e *Expirer) finish(source string, events []model.SeatEvent) int {
	e.events.Dispatch(events...)
	e.recordExpired(source, events)
	n := 0
	for _, ev := range events {
		n += len(ev.SeatCodes)
	}
	if n > 0 {
		e.log.Debug("holds expired", zap.String("source", source), zap.Int("seats", n))
	}
	return n
}
