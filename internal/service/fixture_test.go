package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/config"
	"github.com/iliyamo/bus-seat-hold/internal/metrics"
	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/repository/memstore"
)

const trip = memstore.DemoTripID

var (
	start  = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	policy = config.HoldConfig{MinTTL: time.Second, MaxTTL: 30 * time.Minute, DefaultTTL: 10 * time.Minute, MaxSeats: 10}

	g1 = model.Guest("g1-session")
	g2 = model.Guest("g2-session")
	u1 = model.User("u1")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []model.SeatEvent
}

func (d *recordingDispatcher) Dispatch(events ...model.SeatEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

// take returns and clears the recorded events.
func (d *recordingDispatcher) take() []model.SeatEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.events
	d.events = nil
	return out
}

type scheduled struct {
	tripID uint64
	token  string
	at     time.Time
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduled
}

func (s *recordingScheduler) ScheduleExpiry(_ context.Context, tripID uint64, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduled{tripID, token, at})
	return nil
}

type recordingPublisher struct {
	published chan model.Booking
}

func (p *recordingPublisher) PublishBookingConfirmed(_ context.Context, b model.Booking) error {
	p.published <- b
	return nil
}

type fixture struct {
	store     *memstore.Store
	clock     *fakeClock
	events    *recordingDispatcher
	scheduler *recordingScheduler
	publisher *recordingPublisher
	metrics   *metrics.Metrics

	holds    *HoldService
	expirer  *Expirer
	avail    *AvailabilityService
	bookings *BookingService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithWait(t, 2*time.Second)
}

func newFixtureWithWait(t *testing.T, lockWait time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		store:     memstore.New(lockWait),
		clock:     &fakeClock{now: start},
		events:    &recordingDispatcher{},
		scheduler: &recordingScheduler{},
		publisher: &recordingPublisher{published: make(chan model.Booking, 4)},
		metrics:   metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	f.store.SeedDemo(start)

	opts := Options{
		Clock:      f.clock,
		Dispatcher: f.events,
		Scheduler:  f.scheduler,
		Publisher:  f.publisher,
		Metrics:    f.metrics,
		Logger:     zap.NewNop(),
	}
	f.holds = NewHoldService(f.store, policy, opts)
	f.expirer = NewExpirer(f.store, opts)
	f.avail = NewAvailabilityService(f.store, f.expirer, opts)
	f.bookings = NewBookingService(f.store, opts)
	return f
}

func (f *fixture) hold(t *testing.T, owner model.Principal, ttl time.Duration, codes ...string) model.HoldResult {
	t.Helper()
	res, err := f.holds.AcquireOrExtend(context.Background(), AcquireInput{TripID: trip, SeatCodes: codes, TTL: ttl, Owner: owner})
	require.NoError(t, err)
	return res
}

// statuses returns the projected status of each code as seen with token.
func (f *fixture) statuses(t *testing.T, token string, codes ...string) map[string]model.ViewStatus {
	t.Helper()
	av, err := f.avail.GetAvailability(context.Background(), trip, token)
	require.NoError(t, err)
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	out := make(map[string]model.ViewStatus, len(codes))
	for _, s := range av.Seats {
		if want[s.Code] {
			out[s.Code] = s.Status
		}
	}
	return out
}

func requireCode(t *testing.T, err error, code string) *apperror.AppError {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok, "expected *AppError, got %v", err)
	require.Equal(t, code, ae.Code)
	return ae
}

func eventTypes(events []model.SeatEvent) []model.EventType {
	out := make([]model.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}
