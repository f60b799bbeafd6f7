// Package memstore is an in-process implementation of repository.Store.
// Each seat row carries its own lock, taken in seat code order with a
// bounded wait, so it serializes exactly the operations a SQL engine's row
// locks would.  State lives in memory only and is lost on restart; it backs
// tests and local development.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/repository"
)

type key struct {
	trip uint64
	code string
}

type entry struct {
	lock  chan struct{} // capacity 1; a send acquires, a receive releases
	state model.SeatState
}

// Store keeps trips, seat maps, seat rows and bookings in maps.  mu guards
// the maps themselves and is only held for short copies; it never spans a
// transaction.
type Store struct {
	mu       sync.RWMutex
	trips    map[uint64]model.Trip
	maps     map[uint64]model.SeatMap
	seats    map[key]*entry
	bookings map[string]model.Booking
	lockWait time.Duration
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.  lockWait bounds how long a transaction waits
// for a row lock; zero means wait until the context ends.
func New(lockWait time.Duration) *Store {
	return &Store{
		trips:    make(map[uint64]model.Trip),
		maps:     make(map[uint64]model.SeatMap),
		seats:    make(map[key]*entry),
		bookings: make(map[string]model.Booking),
		lockWait: lockWait,
	}
}

// PutTrip inserts or replaces a trip.
func (s *Store) PutTrip(t model.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[t.ID] = t
}

// PutSeatMap inserts or replaces a seat map.
func (s *Store) PutSeatMap(m model.SeatMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maps[m.ID] = m
}

// Booking returns a stored booking by id.
func (s *Store) Booking(id string) (model.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	return b, ok
}

func (s *Store) Trip(_ context.Context, tripID uint64) (model.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[tripID]
	if !ok {
		return model.Trip{}, repository.ErrTripNotFound
	}
	return t, nil
}

func (s *Store) SeatMap(_ context.Context, seatMapID uint64) (model.SeatMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.maps[seatMapID]
	if !ok {
		return model.SeatMap{}, repository.ErrSeatMapNotFound
	}
	m.Seats = append([]model.SeatDefinition(nil), m.Seats...)
	return m, nil
}

// SeatStates reads committed rows without taking row locks.
func (s *Store) SeatStates(_ context.Context, tripID uint64) ([]model.SeatState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SeatState
	for k, e := range s.seats {
		if k.trip == tripID {
			out = append(out, e.state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatCode < out[j].SeatCode })
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// WithTx runs fn with staged writes that become visible only when fn
// returns nil.  Row locks are released on both paths.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	t := &tx{
		s:      s,
		locked: make(map[key]*entry),
		staged: make(map[key]model.SeatState),
	}
	defer t.unlockAll()
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

type tx struct {
	s        *Store
	locked   map[key]*entry
	staged   map[key]model.SeatState
	bookings []model.Booking
}

func (t *tx) EnsureSeatRows(_ context.Context, tripID uint64, codes []string, now time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, code := range codes {
		k := key{tripID, code}
		if _, ok := t.s.seats[k]; ok {
			continue
		}
		t.s.seats[k] = &entry{
			lock:  make(chan struct{}, 1),
			state: model.SeatState{TripID: tripID, SeatCode: code, Status: model.SeatAvailable, UpdatedAt: now},
		}
	}
	return nil
}

func (t *tx) LockSeats(ctx context.Context, tripID uint64, codes []string, token string) ([]model.SeatState, error) {
	want := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		want[c] = struct{}{}
	}
	match := func(st model.SeatState) bool {
		if _, ok := want[st.SeatCode]; ok {
			return true
		}
		return token != "" && st.LockToken == token
	}

	t.s.mu.RLock()
	var keys []key
	for k, e := range t.s.seats {
		if k.trip == tripID && match(e.state) {
			keys = append(keys, k)
		}
	}
	t.s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].code < keys[j].code })

	for _, k := range keys {
		if err := t.lock(ctx, k); err != nil {
			return nil, err
		}
	}

	// Re-check under the row locks: a token may have moved while waiting.
	var out []model.SeatState
	for _, k := range keys {
		st := t.current(k)
		if match(st) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (t *tx) LockExpired(_ context.Context, tripID uint64, now time.Time, limit int) ([]model.SeatState, error) {
	expired := func(st model.SeatState) bool {
		return st.Status == model.SeatHeld && !st.LockExpiresAt.After(now)
	}

	t.s.mu.RLock()
	var keys []key
	for k, e := range t.s.seats {
		if (tripID == 0 || k.trip == tripID) && expired(e.state) {
			keys = append(keys, k)
		}
	}
	t.s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].trip != keys[j].trip {
			return keys[i].trip < keys[j].trip
		}
		return keys[i].code < keys[j].code
	})

	var out []model.SeatState
	for _, k := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !t.tryLock(k) {
			continue
		}
		if st := t.current(k); expired(st) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (t *tx) SaveSeats(_ context.Context, rows []model.SeatState) error {
	for _, r := range rows {
		k := key{r.TripID, r.SeatCode}
		if _, ok := t.locked[k]; !ok {
			return fmt.Errorf("save seat %d/%s: row not locked by transaction", r.TripID, r.SeatCode)
		}
		t.staged[k] = r
	}
	return nil
}

func (t *tx) InsertBooking(_ context.Context, b model.Booking) error {
	t.bookings = append(t.bookings, b)
	return nil
}

func (t *tx) lock(ctx context.Context, k key) error {
	if _, ok := t.locked[k]; ok {
		return nil
	}
	e := t.entry(k)
	if e == nil {
		return nil
	}
	var timeout <-chan time.Time
	if t.s.lockWait > 0 {
		timer := time.NewTimer(t.s.lockWait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case e.lock <- struct{}{}:
		t.locked[k] = e
		return nil
	case <-timeout:
		return fmt.Errorf("%w: seat %s", repository.ErrLockTimeout, k.code)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", repository.ErrLockTimeout, ctx.Err())
		}
		return ctx.Err()
	}
}

func (t *tx) tryLock(k key) bool {
	if _, ok := t.locked[k]; ok {
		return true
	}
	e := t.entry(k)
	if e == nil {
		return false
	}
	select {
	case e.lock <- struct{}{}:
		t.locked[k] = e
		return true
	default:
		return false
	}
}

func (t *tx) entry(k key) *entry {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.seats[k]
}

// current returns the row as this transaction sees it.
func (t *tx) current(k key) model.SeatState {
	if st, ok := t.staged[k]; ok {
		return st
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.locked[k].state
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for k, st := range t.staged {
		t.locked[k].state = st
	}
	for _, b := range t.bookings {
		t.s.bookings[b.ID] = b
	}
}

func (t *tx) unlockAll() {
	for k, e := range t.locked {
		<-e.lock
		delete(t.locked, k)
	}
}
