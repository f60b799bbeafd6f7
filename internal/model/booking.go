package model

import "time"

// Contact is the purchaser contact attached to a booking.
type Contact struct {
    Name  string `json:"name"`
    Email string `json:"email"`
    Phone string `json:"phone,omitempty"`
}

// Passenger assigns a traveller to one booked seat.
type Passenger struct {
    SeatCode   string `json:"seatCode"`
    FullName   string `json:"fullName"`
    DocumentNo string `json:"documentNo,omitempty"`
}

// Booking records the permanent purchase of a set of seats on a trip.  It
// is created in the same transaction that flips the seats to booked.
//
// Fields:
//  ID         – UUID primary key.
//  Reference  – short human readable code given to the passenger.
//  TripID     – trip the seats belong to.
//  Owner      – principal who finalized the hold.
//  SeatCodes  – booked seat codes, sorted.
//  Contact    – purchaser contact details.
//  Passengers – one passenger per seat.
//  CreatedAt  – creation timestamp.
type Booking struct {
    ID         string
    Reference  string
    TripID     uint64
    Owner      Principal
    SeatCodes  []string
    Contact    Contact
    Passengers []Passenger
    CreatedAt  time.Time
}

// BookingRef is the part of a booking handed back to the caller.
type BookingRef struct {
    ID        string    `json:"id"`
    Reference string    `json:"reference"`
    TripID    uint64    `json:"tripId"`
    SeatCodes []string  `json:"seatCodes"`
    CreatedAt time.Time `json:"createdAt"`
}

// Ref returns the caller-facing reference of b.
func (b Booking) Ref() BookingRef {
    return BookingRef{ID: b.ID, Reference: b.Reference, TripID: b.TripID, SeatCodes: b.SeatCodes, CreatedAt: b.CreatedAt}
}
