// Package seatstate holds the seat transition rules.  A Batch wraps the
// rows of one trip that a transaction has locked, applies transitions to
// them in memory and records the events each transition produces.  It does
// no I/O: callers persist Changed() and hand Events() to a dispatcher only
// after the transaction commits.
package seatstate

import (
	"sort"
	"time"

	"github.com/iliyamo/bus-seat-hold/internal/apperror"
	"github.com/iliyamo/bus-seat-hold/internal/model"
)

// Batch is not safe for concurrent use; it lives inside one transaction.
type Batch struct {
	tripID uint64
	now    time.Time
	rows   map[string]*model.SeatState
	dirty  map[string]struct{}
	events []model.SeatEvent
}

// HoldRequest describes the desired hold after an acquire or extend.
type HoldRequest struct {
	Token     string
	Owner     model.Principal
	SeatCodes []string
	ExpiresAt time.Time
}

// NewBatch copies rows so the caller's slice is never mutated.
func NewBatch(tripID uint64, now time.Time, rows []model.SeatState) *Batch {
	b := &Batch{
		tripID: tripID,
		now:    now,
		rows:   make(map[string]*model.SeatState, len(rows)),
		dirty:  make(map[string]struct{}),
	}
	for i := range rows {
		r := rows[i]
		b.rows[r.SeatCode] = &r
	}
	return b
}

// Now is the instant every transition in the batch is evaluated at.
func (b *Batch) Now() time.Time { return b.now }

// ExpireStale releases every hold whose TTL has lapsed and returns the
// released codes.
func (b *Batch) ExpireStale() []string {
	var codes []string
	for _, code := range b.codes() {
		r := b.rows[code]
		if !r.Expired(b.now) {
			continue
		}
		clearLock(r)
		b.touch(r)
		codes = append(codes, code)
	}
	if len(codes) > 0 {
		b.emit(model.EventSeatReleased, codes, model.SeatAvailable, nil)
	}
	return codes
}

// CheckOwner fails with OwnershipMismatch when any row carrying token, live
// or expired, belongs to a principal other than owner.
func (b *Batch) CheckOwner(token string, owner model.Principal) error {
	if token == "" {
		return nil
	}
	for _, r := range b.rows {
		if r.Status == model.SeatHeld && r.LockToken == token && r.Owner != owner {
			return apperror.OwnershipMismatch()
		}
	}
	return nil
}

// Carrying reports whether any row still references token, expired or not.
func (b *Batch) Carrying(token string) bool {
	for _, r := range b.rows {
		if token != "" && r.LockToken == token {
			return true
		}
	}
	return false
}

// Holding returns the sorted codes of live holds under token.
func (b *Batch) Holding(token string) []string {
	if token == "" {
		return nil
	}
	var codes []string
	for _, code := range b.codes() {
		r := b.rows[code]
		if r.LockToken == token && r.LiveHold(b.now) {
			codes = append(codes, code)
		}
	}
	return codes
}

// Hold makes every requested seat held under req.Token.  Seats previously
// held under the same token but absent from the request are released.
// Either every seat ends up held or the batch is left untouched.
func (b *Batch) Hold(req HoldRequest) error {
	if err := b.CheckOwner(req.Token, req.Owner); err != nil {
		return err
	}
	codes := SortedUnique(req.SeatCodes)
	var conflicts []string
	for _, code := range codes {
		r := b.row(code)
		switch {
		case r.Status == model.SeatAvailable:
		case r.LockToken == req.Token && r.LiveHold(b.now):
		default:
			conflicts = append(conflicts, code)
		}
	}
	if len(conflicts) > 0 {
		return apperror.SeatConflict(conflicts)
	}

	wanted := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		wanted[code] = struct{}{}
	}
	var dropped []string
	for _, code := range b.Holding(req.Token) {
		if _, ok := wanted[code]; ok {
			continue
		}
		r := b.rows[code]
		clearLock(r)
		b.touch(r)
		dropped = append(dropped, code)
	}

	for _, code := range codes {
		r := b.rows[code]
		if r.LockToken != req.Token || r.HeldAt.IsZero() {
			r.HeldAt = b.now
		}
		r.Status = model.SeatHeld
		r.LockToken = req.Token
		r.LockExpiresAt = req.ExpiresAt
		r.Owner = req.Owner
		b.touch(r)
	}

	if len(dropped) > 0 {
		b.emit(model.EventSeatReleased, dropped, model.SeatAvailable, nil)
	}
	expiresAt := req.ExpiresAt
	b.emit(model.EventSeatHeld, codes, model.SeatHeld, &expiresAt)
	return nil
}

// Refresh moves the expiry of every live seat under token.  Seats and
// owner are unchanged.
func (b *Batch) Refresh(token string, expiresAt time.Time) ([]string, error) {
	codes := b.Holding(token)
	if len(codes) == 0 {
		return nil, apperror.LockNotFound()
	}
	for _, code := range codes {
		r := b.rows[code]
		r.LockExpiresAt = expiresAt
		b.touch(r)
	}
	b.emit(model.EventSeatHeld, codes, model.SeatHeld, &expiresAt)
	return codes, nil
}

// Release frees every live seat under token and returns the freed codes.
func (b *Batch) Release(token string) []string {
	codes := b.Holding(token)
	for _, code := range codes {
		r := b.rows[code]
		clearLock(r)
		b.touch(r)
	}
	if len(codes) > 0 {
		b.emit(model.EventSeatReleased, codes, model.SeatAvailable, nil)
	}
	return codes
}

// Book turns the live hold under token into booked seats.  seatCodes must
// match the held set exactly.
func (b *Batch) Book(token string, seatCodes []string) ([]string, error) {
	held := b.Holding(token)
	if len(held) == 0 {
		return nil, apperror.LockExpiredOrConflicted("expired")
	}
	want := SortedUnique(seatCodes)
	if !equal(held, want) {
		return nil, apperror.LockExpiredOrConflicted("seat_set_mismatch").
			WithDetails(map[string]any{"reason": "seat_set_mismatch", "held": held, "requested": want})
	}
	for _, code := range held {
		r := b.rows[code]
		clearLock(r)
		r.Status = model.SeatBooked
		b.touch(r)
	}
	b.emit(model.EventSeatBooked, held, model.SeatBooked, nil)
	return held, nil
}

// Changed returns the rows modified by the batch, sorted by code.
func (b *Batch) Changed() []model.SeatState {
	out := make([]model.SeatState, 0, len(b.dirty))
	for _, code := range b.codes() {
		if _, ok := b.dirty[code]; ok {
			out = append(out, *b.rows[code])
		}
	}
	return out
}

// Events returns the events in the order the transitions were applied.
func (b *Batch) Events() []model.SeatEvent {
	return b.events
}

func (b *Batch) row(code string) *model.SeatState {
	r, ok := b.rows[code]
	if !ok {
		r = &model.SeatState{TripID: b.tripID, SeatCode: code, Status: model.SeatAvailable}
		b.rows[code] = r
	}
	return r
}

func (b *Batch) touch(r *model.SeatState) {
	r.Version++
	r.UpdatedAt = b.now
	b.dirty[r.SeatCode] = struct{}{}
}

func (b *Batch) emit(typ model.EventType, codes []string, status model.SeatStatus, expiresAt *time.Time) {
	versions := make(map[string]int64, len(codes))
	for _, code := range codes {
		versions[code] = b.rows[code].Version
	}
	b.events = append(b.events, model.SeatEvent{
		Type:       typ,
		TripID:     b.tripID,
		SeatCodes:  append([]string(nil), codes...),
		Status:     status,
		ExpiresAt:  expiresAt,
		Versions:   versions,
		OccurredAt: b.now,
	})
}

func (b *Batch) codes() []string {
	codes := make([]string, 0, len(b.rows))
	for code := range b.rows {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func clearLock(r *model.SeatState) {
	r.Status = model.SeatAvailable
	r.LockToken = ""
	r.LockExpiresAt = time.Time{}
	r.Owner = model.Principal{}
	r.HeldAt = time.Time{}
}

// SortedUnique returns a sorted copy of codes without duplicates.  Rows are
// always locked in this order.
func SortedUnique(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
