package model

// SeatDefinition describes a physical seat in a bus layout.  Definitions
// are immutable from the point of view of the hold engine: they change only
// through seat-map administration.
//
// Fields:
//  Code     – seat code unique within the map (e.g. "A1").
//  Row      – 1-based row number.
//  Col      – 1-based column number.
//  IsActive – inactive seats can never be held (broken, crew seat).
//  SeatType – STANDARD, SLEEPER, WINDOW, AISLE or ACCESSIBLE.
type SeatDefinition struct {
    Code     string `db:"code" json:"code"`          // seat_definitions.code
    Row      int    `db:"row_no" json:"row"`         // seat_definitions.row_no
    Col      int    `db:"col_no" json:"col"`         // seat_definitions.col_no
    IsActive bool   `db:"is_active" json:"isActive"` // seat_definitions.is_active
    SeatType string `db:"seat_type" json:"seatType"` // seat_definitions.seat_type
}

// SeatMap is the grid geometry of a bus together with its seat
// definitions ordered by row and column.
type SeatMap struct {
    ID    uint64           `db:"id" json:"id"`
    Name  string           `db:"name" json:"name"`
    Rows  int              `db:"row_count" json:"rows"`
    Cols  int              `db:"col_count" json:"cols"`
    Seats []SeatDefinition `db:"-" json:"seats,omitempty"`
}

// Index returns the seat definitions keyed by code.
func (m SeatMap) Index() map[string]SeatDefinition {
    idx := make(map[string]SeatDefinition, len(m.Seats))
    for _, s := range m.Seats {
        idx[s.Code] = s
    }
    return idx
}
