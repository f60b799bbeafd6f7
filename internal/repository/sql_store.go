package repository

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/jmoiron/sqlx"

    "github.com/iliyamo/bus-seat-hold/internal/model"
)

// SQLStore implements Store on MySQL or PostgreSQL.  Seat mutations rely
// on the engine's row locks; there is no application-level mutex.
type SQLStore struct {
    db       *sqlx.DB
    dialect  Dialect
    lockWait time.Duration

    Trips    *TripRepo
    SeatMaps *SeatMapRepo
    Seats    *SeatStateRepo
    Bookings *BookingRepo
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wires the per-table repositories around db.  lockWait bounds
// how long a transaction waits for a seat row lock before failing with
// ErrLockTimeout.
func NewSQLStore(db *sqlx.DB, lockWait time.Duration) (*SQLStore, error) {
    d, err := DialectFor(db.DriverName())
    if err != nil {
        return nil, err
    }
    return &SQLStore{
        db:       db,
        dialect:  d,
        lockWait: lockWait,
        Trips:    NewTripRepo(db),
        SeatMaps: NewSeatMapRepo(db),
        Seats:    NewSeatStateRepo(db, d),
        Bookings: NewBookingRepo(db),
    }, nil
}

func (s *SQLStore) Trip(ctx context.Context, tripID uint64) (model.Trip, error) {
    return s.Trips.GetByID(ctx, tripID)
}

func (s *SQLStore) SeatMap(ctx context.Context, seatMapID uint64) (model.SeatMap, error) {
    return s.SeatMaps.GetByID(ctx, seatMapID)
}

func (s *SQLStore) SeatStates(ctx context.Context, tripID uint64) ([]model.SeatState, error) {
    return s.Seats.ListByTrip(ctx, tripID)
}

func (s *SQLStore) Ping(ctx context.Context) error {
    return s.db.PingContext(ctx)
}

// WithTx begins a transaction, bounds its lock wait and runs fn.  The
// transaction is rolled back unless fn and the commit both succeed.
func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
    tx, err := s.db.BeginTxx(ctx, nil)
    if err != nil {
        return fmt.Errorf("begin tx: %w", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if stmt := s.dialect.lockTimeoutStmt(s.lockWait); stmt != "" {
        if _, err := tx.ExecContext(ctx, stmt); err != nil {
            return fmt.Errorf("set lock timeout: %w", err)
        }
    }
    if err := fn(ctx, &sqlTx{tx: tx, store: s}); err != nil {
        return classify(err)
    }
    if err := tx.Commit(); err != nil {
        return classify(fmt.Errorf("commit: %w", err))
    }
    committed = true
    return nil
}

func classify(err error) error {
    if isLockConflict(err) && !errors.Is(err, ErrLockTimeout) {
        return fmt.Errorf("%w: %v", ErrLockTimeout, err)
    }
    return err
}

type sqlTx struct {
    tx    *sqlx.Tx
    store *SQLStore
}

func (t *sqlTx) EnsureSeatRows(ctx context.Context, tripID uint64, codes []string, now time.Time) error {
    return t.store.Seats.EnsureRowsTx(ctx, t.tx, tripID, codes, now)
}

func (t *sqlTx) LockSeats(ctx context.Context, tripID uint64, codes []string, token string) ([]model.SeatState, error) {
    return t.store.Seats.LockTx(ctx, t.tx, tripID, codes, token)
}

func (t *sqlTx) LockExpired(ctx context.Context, tripID uint64, now time.Time, limit int) ([]model.SeatState, error) {
    return t.store.Seats.LockExpiredTx(ctx, t.tx, tripID, now, limit)
}

func (t *sqlTx) SaveSeats(ctx context.Context, rows []model.SeatState) error {
    return t.store.Seats.UpdateTx(ctx, t.tx, rows)
}

func (t *sqlTx) InsertBooking(ctx context.Context, b model.Booking) error {
    return t.store.Bookings.CreateTx(ctx, t.tx, b)
}
