package repository

import (
    "context"

    "github.com/jmoiron/sqlx"

    "github.com/iliyamo/bus-seat-hold/internal/model"
)

// BookingRepo persists finalized bookings and their passengers.
type BookingRepo struct {
    db *sqlx.DB
}

// NewBookingRepo returns a BookingRepo bound to the provided database.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateTx inserts the booking header and one booking_passengers row per
// seat within the provided transaction.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, b model.Booking) error {
    _, err := tx.ExecContext(ctx, tx.Rebind(
        `INSERT INTO bookings (id, reference, trip_id, owner_kind, owner_id, contact_name, contact_email, contact_phone, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
        b.ID, b.Reference, b.TripID, string(b.Owner.Kind), b.Owner.ID,
        b.Contact.Name, b.Contact.Email, nullString(b.Contact.Phone), b.CreatedAt.UTC(),
    )
    if err != nil {
        return err
    }
    if len(b.Passengers) == 0 {
        return nil
    }
    // Build the multi-row INSERT; each passenger needs four values.
    query := `INSERT INTO booking_passengers (booking_id, seat_code, full_name, document_no) VALUES `
    args := make([]interface{}, 0, len(b.Passengers)*4)
    for i, p := range b.Passengers {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?)"
        args = append(args, b.ID, p.SeatCode, p.FullName, nullString(p.DocumentNo))
    }
    _, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
    return err
}
