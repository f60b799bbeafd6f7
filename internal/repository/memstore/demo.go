package memstore

import (
	"fmt"
	"time"

	"github.com/iliyamo/bus-seat-hold/internal/model"
)

// DemoTripID is the trip seeded by SeedDemo.
const DemoTripID = 42

// SeedDemo loads a 2+2 coach layout with ten rows and a scheduled trip
// departing a day after now.  Seat D10 is out of service.
func (s *Store) SeedDemo(now time.Time) {
	m := model.SeatMap{ID: 1, Name: "coach 2+2", Rows: 10, Cols: 4}
	for row := 1; row <= m.Rows; row++ {
		for col := 1; col <= m.Cols; col++ {
			code := fmt.Sprintf("%c%d", 'A'+col-1, row)
			seatType := "AISLE"
			if col == 1 || col == m.Cols {
				seatType = "WINDOW"
			}
			m.Seats = append(m.Seats, model.SeatDefinition{
				Code: code, Row: row, Col: col, SeatType: seatType,
				IsActive: code != "D10",
			})
		}
	}
	s.PutSeatMap(m)
	s.PutTrip(model.Trip{
		ID:          DemoTripID,
		SeatMapID:   m.ID,
		Origin:      "Tehran",
		Destination: "Mashhad",
		DepartsAt:   now.Add(24 * time.Hour).UTC(),
		ArrivesAt:   now.Add(36 * time.Hour).UTC(),
		BusLabel:    "DEMO-01",
		Status:      model.TripScheduled,
	})
}
