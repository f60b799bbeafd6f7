package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/jmoiron/sqlx"

    "github.com/iliyamo/bus-seat-hold/internal/model"
)

// SeatMapRepo reads bus layouts.  Layouts are maintained by fleet
// administration and are read-only here.
type SeatMapRepo struct {
    db *sqlx.DB
}

// NewSeatMapRepo returns a SeatMapRepo bound to the provided database.
func NewSeatMapRepo(db *sqlx.DB) *SeatMapRepo { return &SeatMapRepo{db: db} }

// GetByID loads a seat map with its seat definitions ordered by row and
// column.  It returns ErrSeatMapNotFound when the id is unknown.
func (r *SeatMapRepo) GetByID(ctx context.Context, id uint64) (model.SeatMap, error) {
    var m model.SeatMap
    err := r.db.GetContext(ctx, &m, r.db.Rebind(
        `SELECT id, name, row_count, col_count FROM seat_maps WHERE id = ?`), id)
    if errors.Is(err, sql.ErrNoRows) {
        return model.SeatMap{}, ErrSeatMapNotFound
    }
    if err != nil {
        return model.SeatMap{}, err
    }
    err = r.db.SelectContext(ctx, &m.Seats, r.db.Rebind(
        `SELECT code, row_no, col_no, is_active, seat_type
         FROM seat_definitions WHERE seat_map_id = ?
         ORDER BY row_no, col_no`), id)
    if err != nil {
        return model.SeatMap{}, err
    }
    return m, nil
}
