package model

import "time"

// Lock is the logical hold derived by grouping seat rows that share a
// token.  All seats of a lock share the trip, owner and expiry.
//
// Fields:
//  Token     – UUID v4 handed to the client.
//  TripID    – trip the seats belong to.
//  SeatCodes – held seat codes, sorted.
//  Owner     – principal that created the hold.
//  CreatedAt – when the first seat of the hold was taken.
//  ExpiresAt – shared expiry of every seat in the hold.
type Lock struct {
    Token     string
    TripID    uint64
    SeatCodes []string
    Owner     Principal
    CreatedAt time.Time
    ExpiresAt time.Time
}

// HoldResult is returned by acquire, extend and refresh operations.
type HoldResult struct {
    Token     string    `json:"token"`
    ExpiresAt time.Time `json:"expiresAt"`
    HeldSeats []string  `json:"heldSeats"`
    Created   bool      `json:"-"` // true when a new token was minted
}
