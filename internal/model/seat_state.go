package model

import "time"

// SeatStatus is the persisted state of one seat on one trip.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "available"
    SeatHeld      SeatStatus = "held"
    SeatBooked    SeatStatus = "booked"
    SeatInactive  SeatStatus = "inactive"
)

// SeatState is the mutable row kept for every (trip, seat code) pair.
// A seat is held only while LockToken is set and LockExpiresAt lies in the
// future; a held row whose expiry has passed is treated as available by
// every reader until a writer persists the correction.  Booked rows are
// terminal.
//
// Fields:
//  TripID        – trip the seat belongs to.
//  SeatCode      – seat code from the trip's seat map.
//  Status        – available, held, booked or inactive.
//  LockToken     – hold token while held, empty otherwise.
//  LockExpiresAt – hold expiry while held, zero otherwise.
//  Owner         – principal owning the hold, zero otherwise.
//  HeldAt        – when the current hold was first created.
//  Version       – incremented on every transition; orders events per seat.
//  UpdatedAt     – time of the last transition.
type SeatState struct {
    TripID        uint64
    SeatCode      string
    Status        SeatStatus
    LockToken     string
    LockExpiresAt time.Time
    Owner         Principal
    HeldAt        time.Time
    Version       int64
    UpdatedAt     time.Time
}

// LiveHold reports whether the row is a live hold at the given instant.
func (s SeatState) LiveHold(now time.Time) bool {
    return s.Status == SeatHeld && s.LockToken != "" && now.Before(s.LockExpiresAt)
}

// Expired reports whether the row is a hold whose TTL has lapsed.
func (s SeatState) Expired(now time.Time) bool {
    return s.Status == SeatHeld && !s.LiveHold(now)
}

// Effective returns the status a reader should observe at the given
// instant.
func (s SeatState) Effective(now time.Time) SeatStatus {
    if s.Expired(now) {
        return SeatAvailable
    }
    return s.Status
}
