package model

import "time"

// TripStatus is the lifecycle state of a scheduled trip.  Only SCHEDULED
// trips accept new holds or bookings.
type TripStatus string

const (
    TripScheduled TripStatus = "SCHEDULED"
    TripDeparted  TripStatus = "DEPARTED"
    TripCancelled TripStatus = "CANCELLED"
    TripCompleted TripStatus = "COMPLETED"
)

// Trip represents one scheduled departure of a bus on a route.  Trips are
// owned by the scheduling service; this subsystem only reads them to find
// the seat map and decide whether the trip is still bookable.
//
// Fields:
//  ID          – primary key identifier.
//  SeatMapID   – seat layout used by the bus on this trip.
//  Origin      – departure city or terminal.
//  Destination – arrival city or terminal.
//  DepartsAt   – scheduled departure time (UTC).
//  ArrivesAt   – scheduled arrival time (UTC).
//  BusLabel    – plate or fleet label of the bus.
//  Status      – SCHEDULED, DEPARTED, CANCELLED or COMPLETED.
type Trip struct {
    ID          uint64     `db:"id" json:"id"`                   // trips.id
    SeatMapID   uint64     `db:"seat_map_id" json:"seatMapId"`   // trips.seat_map_id
    Origin      string     `db:"origin" json:"origin"`           // trips.origin
    Destination string     `db:"destination" json:"destination"` // trips.destination
    DepartsAt   time.Time  `db:"departs_at" json:"departsAt"`    // trips.departs_at
    ArrivesAt   time.Time  `db:"arrives_at" json:"arrivesAt"`    // trips.arrives_at
    BusLabel    string     `db:"bus_label" json:"busLabel"`      // trips.bus_label
    Status      TripStatus `db:"status" json:"status"`           // trips.status
}

// Bookable reports whether seats on the trip can still be held or booked
// at the given instant.
func (t Trip) Bookable(now time.Time) bool {
    return t.Status == TripScheduled && now.Before(t.DepartsAt)
}
