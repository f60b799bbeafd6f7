// Package queue carries work that leaves the request path: the
// booking.confirmed notification published to RabbitMQ, the audit
// consumer reading it back, and delayed per-hold expiry tasks on asynq.
package queue

import (
    "time"

    "github.com/iliyamo/bus-seat-hold/internal/model"
)

// BookingConfirmedEvent is published when a hold is turned into a booking.
// It carries enough for downstream consumers to log, notify or feed
// analytics without querying the seat store.
type BookingConfirmedEvent struct {
    BookingID   string            `json:"booking_id"`
    Reference   string            `json:"reference"`
    TripID      uint64            `json:"trip_id"`
    Owner       string            `json:"owner"`
    SeatCodes   []string          `json:"seats"`
    Contact     model.Contact     `json:"contact"`
    Passengers  []model.Passenger `json:"passengers"`
    ConfirmedAt string            `json:"confirmed_at"`
}

// NewBookingConfirmedEvent builds the event for b.
func NewBookingConfirmedEvent(b model.Booking) BookingConfirmedEvent {
    return BookingConfirmedEvent{
        BookingID:   b.ID,
        Reference:   b.Reference,
        TripID:      b.TripID,
        Owner:       b.Owner.String(),
        SeatCodes:   b.SeatCodes,
        Contact:     b.Contact,
        Passengers:  b.Passengers,
        ConfirmedAt: b.CreatedAt.UTC().Format(time.RFC3339),
    }
}
