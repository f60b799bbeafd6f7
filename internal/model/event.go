package model

import "time"

// EventType names a seat transition broadcast to trip subscribers.
type EventType string

const (
    EventSeatHeld     EventType = "seatHeld"
    EventSeatReleased EventType = "seatReleased"
    EventSeatBooked   EventType = "seatBooked"
)

// SeatEvent is emitted for every committed seat transition.  Versions maps
// each seat code to the row version the transition produced, which lets
// subscribers discard events that arrive out of order for the same seat.
// Tokens and owners are never part of an event.
type SeatEvent struct {
    Type       EventType        `json:"type"`
    TripID     uint64           `json:"tripId"`
    SeatCodes  []string         `json:"seatCodes"`
    Status     SeatStatus       `json:"status"`
    ExpiresAt  *time.Time       `json:"expiresAt,omitempty"`
    Versions   map[string]int64 `json:"versions"`
    OccurredAt time.Time        `json:"occurredAt"`
}
