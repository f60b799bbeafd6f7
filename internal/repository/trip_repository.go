package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/jmoiron/sqlx"

    "github.com/iliyamo/bus-seat-hold/internal/model"
)

// TripRepo reads trips owned by the scheduling service.  The hold engine
// never writes to the trips table.
type TripRepo struct {
    db *sqlx.DB
}

// NewTripRepo returns a TripRepo bound to the provided database.
func NewTripRepo(db *sqlx.DB) *TripRepo { return &TripRepo{db: db} }

// GetByID loads one trip.  It returns ErrTripNotFound when the id is
// unknown.
func (r *TripRepo) GetByID(ctx context.Context, id uint64) (model.Trip, error) {
    var t model.Trip
    err := r.db.GetContext(ctx, &t, r.db.Rebind(
        `SELECT id, seat_map_id, origin, destination, departs_at, arrives_at, bus_label, status
         FROM trips WHERE id = ?`), id)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Trip{}, ErrTripNotFound
    }
    if err != nil {
        return model.Trip{}, err
    }
    t.DepartsAt = t.DepartsAt.UTC()
    t.ArrivesAt = t.ArrivesAt.UTC()
    return t, nil
}
