package repository

import (
    "context"
    "time"

    "github.com/iliyamo/bus-seat-hold/internal/model"
)

// Store is the persistence boundary used by the services.  Plain reads run
// outside any transaction; every seat mutation runs inside WithTx.
type Store interface {
    Trip(ctx context.Context, tripID uint64) (model.Trip, error)
    SeatMap(ctx context.Context, seatMapID uint64) (model.SeatMap, error)
    SeatStates(ctx context.Context, tripID uint64) ([]model.SeatState, error)
    // WithTx runs fn in one transaction.  fn's error rolls everything back;
    // lock contention surfaces as ErrLockTimeout.
    WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
    Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a seat transaction.  Row
// locks taken by LockSeats and LockExpired are held until the transaction
// ends.
type Tx interface {
    // EnsureSeatRows creates missing available rows for codes.
    EnsureSeatRows(ctx context.Context, tripID uint64, codes []string, now time.Time) error
    // LockSeats locks, in seat code order, the rows named by codes together
    // with every row currently carrying token.
    LockSeats(ctx context.Context, tripID uint64, codes []string, token string) ([]model.SeatState, error)
    // LockExpired locks up to limit held rows whose expiry is not after now,
    // skipping rows another transaction already holds.  tripID 0 scans all
    // trips.
    LockExpired(ctx context.Context, tripID uint64, now time.Time, limit int) ([]model.SeatState, error)
    SaveSeats(ctx context.Context, rows []model.SeatState) error
    InsertBooking(ctx context.Context, b model.Booking) error
}
