package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-seat-hold/internal/model"
)

func TestExpiry_HoldLapsesExactlyAtTTL(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, g1, time.Minute, "A1")

	f.clock.Advance(time.Minute - time.Millisecond)
	assert.Equal(t, model.ViewMine, f.statuses(t, h.Token, "A1")["A1"])
	assert.Equal(t, model.ViewHeld, f.statuses(t, "", "A1")["A1"])

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, model.ViewAvailable, f.statuses(t, h.Token, "A1")["A1"])

	// Another principal can take the seat without any sweep having run.
	f.hold(t, g2, time.Minute, "A1")
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	f.store.PutTrip(model.Trip{ID: 43, SeatMapID: 1, DepartsAt: start.Add(48 * time.Hour), Status: model.TripScheduled})

	f.hold(t, g1, time.Minute, "A1", "A2")
	f.hold(t, g2, 10*time.Minute, "B1")
	_, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{TripID: 43, SeatCodes: []string{"C1"}, TTL: time.Minute, Owner: u1})
	require.NoError(t, err)
	f.events.take()

	f.clock.Advance(2 * time.Minute)
	n, err := f.expirer.Sweep(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	events := f.events.take()
	require.Len(t, events, 2)
	assert.Equal(t, uint64(trip), events[0].TripID)
	assert.Equal(t, []string{"A1", "A2"}, events[0].SeatCodes)
	assert.Equal(t, uint64(43), events[1].TripID)
	for _, ev := range events {
		assert.Equal(t, model.EventSeatReleased, ev.Type)
		assert.Equal(t, model.SeatAvailable, ev.Status)
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.ExpiredSeatsTotal.WithLabelValues("sweep")))

	// B1 is still live.
	assert.Equal(t, model.ViewHeld, f.statuses(t, "", "B1")["B1"])

	n, err = f.expirer.Sweep(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweep_RespectsLimit(t *testing.T) {
	f := newFixture(t)
	f.hold(t, g1, time.Minute, "A1", "A2", "A3")
	f.clock.Advance(time.Hour)

	n, err := f.expirer.Sweep(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.expirer.Sweep(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExpireToken_IgnoresRefreshedHold(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, g1, time.Minute, "A1")
	f.clock.Advance(30 * time.Second)
	_, err := f.holds.Refresh(context.Background(), RefreshInput{TripID: trip, Token: h.Token, TTL: time.Minute, Owner: g1})
	require.NoError(t, err)
	f.events.take()

	// The task scheduled for the first expiry fires late.
	f.clock.Advance(31 * time.Second)
	n, err := f.expirer.ExpireToken(context.Background(), trip, h.Token)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.events.take())

	f.clock.Advance(30 * time.Second)
	n, err = f.expirer.ExpireToken(context.Background(), trip, h.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []model.EventType{model.EventSeatReleased}, eventTypes(f.events.take()))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ExpiredSeatsTotal.WithLabelValues("task")))
}
