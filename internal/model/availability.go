package model

import "time"

// ViewStatus is the status of a seat from the caller's point of view.
type ViewStatus string

const (
    ViewAvailable ViewStatus = "available"
    ViewHeld      ViewStatus = "held"
    ViewMine      ViewStatus = "mine"
    ViewBooked    ViewStatus = "booked"
    ViewInactive  ViewStatus = "inactive"
)

// SeatView is one seat in an availability response.  ExpiresAt is only set
// for seats held under the caller's own token.
type SeatView struct {
    Code      string     `json:"code"`
    Row       int        `json:"row"`
    Col       int        `json:"col"`
    SeatType  string     `json:"seatType"`
    Status    ViewStatus `json:"status"`
    ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Geometry is the size of the seat grid.
type Geometry struct {
    Rows int `json:"rows"`
    Cols int `json:"cols"`
}

// Availability is the projected seat view of a trip.
type Availability struct {
    Trip    Trip       `json:"trip"`
    SeatMap Geometry   `json:"seatMap"`
    Seats   []SeatView `json:"seats"`
}
