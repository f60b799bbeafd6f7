package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/jmoiron/sqlx"

    "github.com/iliyamo/bus-seat-hold/internal/model"
)

const seatStateColumns = `trip_id, seat_code, status, lock_token, lock_expires_at, owner_kind, owner_id, held_at, version, updated_at`

// seatStateRecord is the persistence shape of a seat_states row.  Lock
// columns are NULL whenever the seat is not held.
type seatStateRecord struct {
    TripID        uint64         `db:"trip_id"`
    SeatCode      string         `db:"seat_code"`
    Status        string         `db:"status"`
    LockToken     sql.NullString `db:"lock_token"`
    LockExpiresAt sql.NullTime   `db:"lock_expires_at"`
    OwnerKind     sql.NullString `db:"owner_kind"`
    OwnerID       sql.NullString `db:"owner_id"`
    HeldAt        sql.NullTime   `db:"held_at"`
    Version       int64          `db:"version"`
    UpdatedAt     time.Time      `db:"updated_at"`
}

func (r seatStateRecord) toModel() model.SeatState {
    s := model.SeatState{
        TripID:    r.TripID,
        SeatCode:  r.SeatCode,
        Status:    model.SeatStatus(r.Status),
        LockToken: r.LockToken.String,
        Version:   r.Version,
        UpdatedAt: r.UpdatedAt.UTC(),
    }
    if r.LockExpiresAt.Valid {
        s.LockExpiresAt = r.LockExpiresAt.Time.UTC()
    }
    if r.HeldAt.Valid {
        s.HeldAt = r.HeldAt.Time.UTC()
    }
    if r.OwnerKind.Valid && r.OwnerID.Valid {
        s.Owner = model.Principal{Kind: model.PrincipalKind(r.OwnerKind.String), ID: r.OwnerID.String}
    }
    return s
}

func toModels(recs []seatStateRecord) []model.SeatState {
    out := make([]model.SeatState, 0, len(recs))
    for _, r := range recs {
        out = append(out, r.toModel())
    }
    return out
}

// SeatStateRepo provides data access to the seat_states table.  All
// timestamps are stored in UTC.  Methods ending in Tx run inside a caller
// supplied transaction; the caller commits or rolls back.
type SeatStateRepo struct {
    db      *sqlx.DB
    dialect Dialect
}

// NewSeatStateRepo returns a SeatStateRepo bound to the provided database.
func NewSeatStateRepo(db *sqlx.DB, d Dialect) *SeatStateRepo {
    return &SeatStateRepo{db: db, dialect: d}
}

// ListByTrip returns every seat row of a trip without locking.
func (r *SeatStateRepo) ListByTrip(ctx context.Context, tripID uint64) ([]model.SeatState, error) {
    var recs []seatStateRecord
    err := r.db.SelectContext(ctx, &recs, r.db.Rebind(
        `SELECT `+seatStateColumns+` FROM seat_states WHERE trip_id = ? ORDER BY seat_code`), tripID)
    if err != nil {
        return nil, err
    }
    return toModels(recs), nil
}

// EnsureRowsTx inserts an available row for each code that has none yet.
// Existing rows are left untouched.
func (r *SeatStateRepo) EnsureRowsTx(ctx context.Context, tx *sqlx.Tx, tripID uint64, codes []string, now time.Time) error {
    if len(codes) == 0 {
        return nil
    }
    query := r.dialect.insertIgnore("seat_states", "trip_id, seat_code, status, version, updated_at", "trip_id, seat_code", len(codes))
    args := make([]interface{}, 0, len(codes)*5)
    for _, code := range codes {
        args = append(args, tripID, code, string(model.SeatAvailable), 0, now.UTC())
    }
    _, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
    return err
}

// LockTx selects the rows named by codes plus every row carrying token with
// SELECT ... FOR UPDATE.  Rows come back, and are therefore locked, in
// seat code order so concurrent multi-seat operations cannot deadlock on
// each other.
func (r *SeatStateRepo) LockTx(ctx context.Context, tx *sqlx.Tx, tripID uint64, codes []string, token string) ([]model.SeatState, error) {
    if len(codes) == 0 && token == "" {
        return nil, nil
    }
    query := `SELECT ` + seatStateColumns + ` FROM seat_states WHERE trip_id = ? AND (`
    args := []interface{}{tripID}
    if len(codes) > 0 {
        query += `seat_code IN (?)`
        args = append(args, codes)
    }
    if token != "" {
        if len(codes) > 0 {
            query += ` OR `
        }
        query += `lock_token = ?`
        args = append(args, token)
    }
    query += `) ORDER BY seat_code FOR UPDATE`

    query, args, err := sqlx.In(query, args...)
    if err != nil {
        return nil, err
    }
    var recs []seatStateRecord
    if err := tx.SelectContext(ctx, &recs, tx.Rebind(query), args...); err != nil {
        return nil, err
    }
    return toModels(recs), nil
}

// LockExpiredTx locks held rows whose expiry has passed.  Rows locked by a
// concurrent transaction are skipped; that transaction expires them itself.
func (r *SeatStateRepo) LockExpiredTx(ctx context.Context, tx *sqlx.Tx, tripID uint64, now time.Time, limit int) ([]model.SeatState, error) {
    query := `SELECT ` + seatStateColumns + ` FROM seat_states WHERE status = ? AND lock_expires_at <= ?`
    args := []interface{}{string(model.SeatHeld), now.UTC()}
    if tripID != 0 {
        query += ` AND trip_id = ?`
        args = append(args, tripID)
    }
    query += ` ORDER BY trip_id, seat_code LIMIT ? FOR UPDATE SKIP LOCKED`
    args = append(args, limit)

    var recs []seatStateRecord
    if err := tx.SelectContext(ctx, &recs, tx.Rebind(query), args...); err != nil {
        return nil, err
    }
    return toModels(recs), nil
}

// UpdateTx writes back rows changed by a transition.
func (r *SeatStateRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, rows []model.SeatState) error {
    query := tx.Rebind(`UPDATE seat_states
        SET status = ?, lock_token = ?, lock_expires_at = ?, owner_kind = ?, owner_id = ?, held_at = ?, version = ?, updated_at = ?
        WHERE trip_id = ? AND seat_code = ?`)
    for _, s := range rows {
        _, err := tx.ExecContext(ctx, query,
            string(s.Status),
            nullString(s.LockToken),
            nullTime(s.LockExpiresAt),
            nullString(string(s.Owner.Kind)),
            nullString(s.Owner.ID),
            nullTime(s.HeldAt),
            s.Version,
            s.UpdatedAt.UTC(),
            s.TripID,
            s.SeatCode,
        )
        if err != nil {
            return err
        }
    }
    return nil
}

func nullString(s string) sql.NullString {
    return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
    if t.IsZero() {
        return sql.NullTime{}
    }
    return sql.NullTime{Time: t.UTC(), Valid: true}
}
