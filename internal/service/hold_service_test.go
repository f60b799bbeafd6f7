package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/repository"
)

func TestAcquire_NewHold(t *testing.T) {
	f := newFixture(t)

	res, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{
		TripID: trip, SeatCodes: []string{" a2", "A1", "a1"}, TTL: 5 * time.Minute, Owner: g1,
	})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, []string{"A1", "A2"}, res.HeldSeats)
	assert.Equal(t, start.Add(5*time.Minute), res.ExpiresAt)
	_, err = uuid.Parse(res.Token)
	assert.NoError(t, err)

	events := f.events.take()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSeatHeld, events[0].Type)
	assert.Equal(t, []string{"A1", "A2"}, events[0].SeatCodes)
	require.NotNil(t, events[0].ExpiresAt)
	assert.Equal(t, res.ExpiresAt, *events[0].ExpiresAt)

	require.Len(t, f.scheduler.calls, 1)
	assert.Equal(t, scheduled{trip, res.Token, res.ExpiresAt}, f.scheduler.calls[0])
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.HoldsTotal.WithLabelValues("acquire", "ok")))
}

func TestAcquire_DefaultTTL(t *testing.T) {
	f := newFixture(t)
	res := f.hold(t, g1, 0, "B1")
	assert.Equal(t, start.Add(policy.DefaultTTL), res.ExpiresAt)
}

func TestAcquire_MutualExclusion(t *testing.T) {
	f := newFixture(t)
	f.hold(t, g1, time.Minute, "A1")

	_, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{TripID: trip, SeatCodes: []string{"A1"}, Owner: g2})
	ae := requireCode(t, err, apperror.CodeSeatConflict)
	assert.Equal(t, []string{"A1"}, ae.Details["seats"])
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.HoldsTotal.WithLabelValues("acquire", apperror.CodeSeatConflict)))
}

func TestAcquire_ConcurrentRequestsHaveOneWinner(t *testing.T) {
	f := newFixture(t)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := model.Guest(uuid.NewString())
			_, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{TripID: trip, SeatCodes: []string{"C3", "C4"}, Owner: owner})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if apperror.CodeOf(err) == apperror.CodeSeatConflict {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, conflicts)
}

func TestAcquire_BatchIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.hold(t, g1, time.Minute, "A2")
	f.events.take()

	_, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{TripID: trip, SeatCodes: []string{"A1", "A2", "A3"}, Owner: g2})
	ae := requireCode(t, err, apperror.CodeSeatConflict)
	assert.Equal(t, []string{"A2"}, ae.Details["seats"])

	assert.Empty(t, f.events.take())
	assert.Equal(t, map[string]model.ViewStatus{
		"A1": model.ViewAvailable, "A2": model.ViewHeld, "A3": model.ViewAvailable,
	}, f.statuses(t, "", "A1", "A2", "A3"))
}

func TestAcquire_ExtendReshapesHold(t *testing.T) {
	f := newFixture(t)
	first := f.hold(t, g1, time.Minute, "A1", "A2")
	f.events.take()
	f.clock.Advance(30 * time.Second)

	res, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{
		TripID: trip, SeatCodes: []string{"A2", "A3"}, TTL: 2 * time.Minute, Owner: g1, ExistingToken: first.Token,
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, first.Token, res.Token)
	assert.Equal(t, []string{"A2", "A3"}, res.HeldSeats)
	assert.Equal(t, start.Add(30*time.Second+2*time.Minute), res.ExpiresAt)

	events := f.events.take()
	assert.Equal(t, []model.EventType{model.EventSeatReleased, model.EventSeatHeld}, eventTypes(events))
	assert.Equal(t, []string{"A1"}, events[0].SeatCodes)

	assert.Equal(t, map[string]model.ViewStatus{
		"A1": model.ViewAvailable, "A2": model.ViewMine, "A3": model.ViewMine,
	}, f.statuses(t, first.Token, "A1", "A2", "A3"))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.HoldsTotal.WithLabelValues("extend", "ok")))
}

func TestAcquire_LapsedTokenGetsNewToken(t *testing.T) {
	f := newFixture(t)
	first := f.hold(t, g1, time.Minute, "A1")
	f.events.take()
	f.clock.Advance(2 * time.Minute)

	res, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{
		TripID: trip, SeatCodes: []string{"A1"}, Owner: g1, ExistingToken: first.Token,
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEqual(t, first.Token, res.Token)
	assert.Equal(t, []model.EventType{model.EventSeatReleased, model.EventSeatHeld}, eventTypes(f.events.take()))
}

func TestAcquire_ForeignTokenIsOwnershipMismatch(t *testing.T) {
	f := newFixture(t)
	first := f.hold(t, g1, time.Minute, "A1")

	_, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{
		TripID: trip, SeatCodes: []string{"A1"}, Owner: g2, ExistingToken: first.Token,
	})
	requireCode(t, err, apperror.CodeOwnershipMismatch)
}

func TestAcquire_Validation(t *testing.T) {
	f := newFixture(t)
	f.store.PutTrip(model.Trip{ID: 7, SeatMapID: 1, DepartsAt: start.Add(-time.Hour), Status: model.TripScheduled})
	f.store.PutTrip(model.Trip{ID: 8, SeatMapID: 1, DepartsAt: start.Add(time.Hour), Status: model.TripCancelled})

	eleven := []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8", "A9", "A10", "B1"}

	tests := []struct {
		name string
		in   AcquireInput
		code string
	}{
		{"no principal", AcquireInput{TripID: trip, SeatCodes: []string{"A1"}}, apperror.CodeUnauthorized},
		{"no seats", AcquireInput{TripID: trip, Owner: g1}, apperror.CodeValidation},
		{"blank seat", AcquireInput{TripID: trip, SeatCodes: []string{" "}, Owner: g1}, apperror.CodeValidation},
		{"too many seats", AcquireInput{TripID: trip, SeatCodes: eleven, Owner: g1}, apperror.CodeValidation},
		{"ttl too long", AcquireInput{TripID: trip, SeatCodes: []string{"A1"}, TTL: time.Hour, Owner: g1}, apperror.CodeValidation},
		{"ttl negative", AcquireInput{TripID: trip, SeatCodes: []string{"A1"}, TTL: -time.Second, Owner: g1}, apperror.CodeValidation},
		{"token not uuid", AcquireInput{TripID: trip, SeatCodes: []string{"A1"}, Owner: g1, ExistingToken: "abc"}, apperror.CodeValidation},
		{"unknown trip", AcquireInput{TripID: 999, SeatCodes: []string{"A1"}, Owner: g1}, apperror.CodeTripNotFound},
		{"departed", AcquireInput{TripID: 7, SeatCodes: []string{"A1"}, Owner: g1}, apperror.CodeTripNotBookable},
		{"cancelled", AcquireInput{TripID: 8, SeatCodes: []string{"A1"}, Owner: g1}, apperror.CodeTripNotBookable},
		{"unknown seat", AcquireInput{TripID: trip, SeatCodes: []string{"A1", "Z9"}, Owner: g1}, apperror.CodeSeatNotFound},
		{"inactive seat", AcquireInput{TripID: trip, SeatCodes: []string{"D10"}, Owner: g1}, apperror.CodeSeatInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.holds.AcquireOrExtend(context.Background(), tt.in)
			requireCode(t, err, tt.code)
		})
	}
	assert.Empty(t, f.events.take())
}

func TestAcquire_LockWaitTimeoutIsConflict(t *testing.T) {
	f := newFixtureWithWait(t, 20*time.Millisecond)
	ctx := context.Background()

	locked := make(chan struct{})
	unlock := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := tx.EnsureSeatRows(ctx, trip, []string{"B2"}, start); err != nil {
				return err
			}
			if _, err := tx.LockSeats(ctx, trip, []string{"B2"}, ""); err != nil {
				return err
			}
			close(locked)
			<-unlock
			return nil
		})
	}()
	<-locked

	_, err := f.holds.AcquireOrExtend(ctx, AcquireInput{TripID: trip, SeatCodes: []string{"B2"}, Owner: g1})
	ae := requireCode(t, err, apperror.CodeSeatConflict)
	assert.Equal(t, []string{"B2"}, ae.Details["seats"])

	close(unlock)
	require.NoError(t, <-done)
	f.hold(t, g1, time.Minute, "B2")
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, g1, time.Minute, "A1", "A2")
	f.events.take()
	f.clock.Advance(45 * time.Second)

	res, err := f.holds.Refresh(context.Background(), RefreshInput{TripID: trip, Token: h.Token, TTL: 5 * time.Minute, Owner: g1})
	require.NoError(t, err)
	assert.Equal(t, h.Token, res.Token)
	assert.Equal(t, []string{"A1", "A2"}, res.HeldSeats)
	assert.Equal(t, start.Add(45*time.Second+5*time.Minute), res.ExpiresAt)
	assert.Equal(t, []model.EventType{model.EventSeatHeld}, eventTypes(f.events.take()))

	// The original TTL has passed but the refreshed hold is still live.
	f.clock.Advance(time.Minute)
	assert.Equal(t, model.ViewMine, f.statuses(t, h.Token, "A1")["A1"])
}

func TestRefresh_Errors(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, g1, time.Minute, "A1")
	ctx := context.Background()

	_, err := f.holds.Refresh(ctx, RefreshInput{TripID: trip, Token: uuid.NewString(), Owner: g1})
	requireCode(t, err, apperror.CodeLockNotFound)

	_, err = f.holds.Refresh(ctx, RefreshInput{TripID: trip, Token: "not-a-uuid", Owner: g1})
	requireCode(t, err, apperror.CodeLockNotFound)

	_, err = f.holds.Refresh(ctx, RefreshInput{TripID: trip, Token: h.Token, Owner: g2})
	requireCode(t, err, apperror.CodeOwnershipMismatch)
}

func TestRefresh_LapsedHoldIsExpiredAndBroadcast(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, g1, time.Minute, "A1")
	f.events.take()
	f.clock.Advance(time.Minute)

	_, err := f.holds.Refresh(context.Background(), RefreshInput{TripID: trip, Token: h.Token, Owner: g1})
	requireCode(t, err, apperror.CodeLockExpired)

	events := f.events.take()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSeatReleased, events[0].Type)
	assert.Equal(t, []string{"A1"}, events[0].SeatCodes)

	// The expiry was committed: the token no longer exists.
	_, err = f.holds.Refresh(context.Background(), RefreshInput{TripID: trip, Token: h.Token, Owner: g1})
	requireCode(t, err, apperror.CodeLockNotFound)
}

func TestRelease(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, g1, time.Minute, "A1", "A2")
	f.events.take()
	ctx := context.Background()

	_, err := f.holds.Release(ctx, ReleaseInput{TripID: trip, Token: h.Token, Owner: g2})
	requireCode(t, err, apperror.CodeOwnershipMismatch)

	released, err := f.holds.Release(ctx, ReleaseInput{TripID: trip, Token: h.Token, Owner: g1})
	require.NoError(t, err)
	assert.True(t, released)
	events := f.events.take()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSeatReleased, events[0].Type)
	assert.Equal(t, []string{"A1", "A2"}, events[0].SeatCodes)

	released, err = f.holds.Release(ctx, ReleaseInput{TripID: trip, Token: h.Token, Owner: g1})
	require.NoError(t, err)
	assert.False(t, released)
	assert.Empty(t, f.events.take())

	released, err = f.holds.Release(ctx, ReleaseInput{TripID: trip, Token: "garbage"})
	require.NoError(t, err)
	assert.False(t, released)
}

func TestRelease_LapsedHoldReportsFalse(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, g1, time.Minute, "A1")
	f.events.take()
	f.clock.Advance(2 * time.Minute)

	// Even a stranger gets false rather than a mismatch once the hold lapsed.
	released, err := f.holds.Release(context.Background(), ReleaseInput{TripID: trip, Token: h.Token, Owner: g2})
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, []model.EventType{model.EventSeatReleased}, eventTypes(f.events.take()))
}
