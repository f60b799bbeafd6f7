package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/model"
	"github.com/iliyamo/bus-seat-hold/internal/repository"
)

// AvailabilityService projects seat definitions and seat rows into the
// view a caller sees.
type AvailabilityService struct {
	core
	expirer *Expirer
}

func NewAvailabilityService(store repository.Store, expirer *Expirer, opts Options) *AvailabilityService {
	return &AvailabilityService{core: newCore(store, opts, "availability"), expirer: expirer}
}

// GetAvailability returns every seat of the trip.  Seats held under
// callerToken are reported as mine with their expiry; other holds only as
// held.  Lapsed holds of the trip are expired first.
func (s *AvailabilityService) GetAvailability(ctx context.Context, tripID uint64, callerToken string) (model.Availability, error) {
	trip, seatMap, err := s.loadTrip(ctx, tripID)
	if err != nil {
		return model.Availability{}, err
	}

	if s.expirer != nil {
		if _, err := s.expirer.ExpireTrip(ctx, tripID); err != nil {
			s.log.Warn("lazy expiry failed", zap.Uint64("trip_id", tripID), zap.Error(err))
		}
	}

	rows, err := s.store.SeatStates(ctx, tripID)
	if err != nil {
		return model.Availability{}, fmt.Errorf("load seat states of trip %d: %w", tripID, err)
	}
	byCode := make(map[string]model.SeatState, len(rows))
	for _, r := range rows {
		byCode[r.SeatCode] = r
	}

	now := s.clock.Now()
	seats := make([]model.SeatView, 0, len(seatMap.Seats))
	for _, def := range seatMap.Seats {
		view := model.SeatView{Code: def.Code, Row: def.Row, Col: def.Col, SeatType: def.SeatType, Status: model.ViewAvailable}
		st, ok := byCode[def.Code]
		switch {
		case !def.IsActive:
			view.Status = model.ViewInactive
		case !ok:
		case st.Status == model.SeatBooked:
			view.Status = model.ViewBooked
		case st.Status == model.SeatInactive:
			view.Status = model.ViewInactive
		case st.LiveHold(now) && callerToken != "" && st.LockToken == callerToken:
			expiresAt := st.LockExpiresAt
			view.Status = model.ViewMine
			view.ExpiresAt = &expiresAt
		case st.LiveHold(now):
			view.Status = model.ViewHeld
		}
		seats = append(seats, view)
	}

	return model.Availability{
		Trip:    trip,
		SeatMap: model.Geometry{Rows: seatMap.Rows, Cols: seatMap.Cols},
		Seats:   seats,
	}, nil
}
