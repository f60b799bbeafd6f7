// Package repository defines the persistence contract of the seat hold
// engine and its SQL implementation.  Sentinel errors allow the service
// layer to distinguish missing reference data from lock contention.
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
    "github.com/jackc/pgx/v5/pgconn"
)

// ErrTripNotFound is returned when no trip row matches the id.
var ErrTripNotFound = errors.New("trip not found")

// ErrSeatMapNotFound is returned when a trip references a seat map that
// does not exist.
var ErrSeatMapNotFound = errors.New("seat map not found")

// ErrLockTimeout is returned when a transaction could not obtain its row
// locks within the configured wait, or was chosen as a deadlock victim.
// Callers translate it into a seat conflict.
var ErrLockTimeout = errors.New("seat row lock wait exceeded")

// MySQL: 1205 lock wait timeout, 1213 deadlock.
// PostgreSQL: 55P03 lock_not_available, 40P01 deadlock_detected.
func isLockConflict(err error) bool {
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        return me.Number == 1205 || me.Number == 1213
    }
    var pe *pgconn.PgError
    if errors.As(err, &pe) {
        return pe.Code == "55P03" || pe.Code == "40P01"
    }
    return false
}
