package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

const ticketCols = `id, trip_id, seat_number, from_ordinal, to_ordinal, passenger_id, hold_id, price_cents,
	payment_method, status, overbooking, qr_code, refund_cents, no_show_fee_cents, cancel_reason, created_at, updated_at`

// TicketRepo provides CRUD operations for tickets. A ticket covers one
// seat on one segment of a trip; hold_id is NULL for over-capacity sales.
type TicketRepo struct{}

func scanTicket(row rowScanner) (model.Ticket, error) {
	var (
		t      model.Ticket
		holdID sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.TripID, &t.SeatNumber, &t.FromOrdinal, &t.ToOrdinal, &t.PassengerID, &holdID, &t.PriceCents,
		&t.PaymentMethod, &t.Status, &t.Overbooking, &t.QRCode, &t.RefundCents, &t.NoShowFeeCents, &t.CancelReason,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Ticket{}, err
	}
	t.HoldID = nullUint(holdID)
	return t, nil
}

func (r *TicketRepo) query(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]model.Ticket, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTx loads a ticket by ID.
func (r *TicketRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Ticket, error) {
	t, err := scanTicket(tx.QueryRowContext(ctx, `SELECT `+ticketCols+` FROM tickets WHERE id = ?`, id))
	if err != nil {
		return model.Ticket{}, notFound(err, domain.ErrTicketNotFound, id)
	}
	return t, nil
}

// GetByQRTx loads the ticket printed with code.
func (r *TicketRepo) GetByQRTx(ctx context.Context, tx *sql.Tx, code string) (model.Ticket, error) {
	t, err := scanTicket(tx.QueryRowContext(ctx, `SELECT `+ticketCols+` FROM tickets WHERE qr_code = ?`, code))
	if err != nil {
		return model.Ticket{}, notFound(err, domain.ErrTicketNotFound, code)
	}
	return t, nil
}

// LiveTx lists PENDING_PAYMENT and SOLD tickets of a trip, optionally for
// one seat.
func (r *TicketRepo) LiveTx(ctx context.Context, tx *sql.Tx, tripID uint64, seatNumber string) ([]model.Ticket, error) {
	if seatNumber == "" {
		return r.query(ctx, tx, `SELECT `+ticketCols+` FROM tickets
			WHERE trip_id = ? AND status IN ('PENDING_PAYMENT','SOLD') ORDER BY id`, tripID)
	}
	return r.query(ctx, tx, `SELECT `+ticketCols+` FROM tickets
		WHERE trip_id = ? AND seat_number = ? AND status IN ('PENDING_PAYMENT','SOLD') ORDER BY id`, tripID, seatNumber)
}

// ListByTripTx lists every ticket of a trip.
func (r *TicketRepo) ListByTripTx(ctx context.Context, tx *sql.Tx, tripID uint64) ([]model.Ticket, error) {
	return r.query(ctx, tx, `SELECT `+ticketCols+` FROM tickets WHERE trip_id = ? ORDER BY id`, tripID)
}

// CreateTx inserts a ticket and sets its generated ID.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (trip_id, seat_number, from_ordinal, to_ordinal, passenger_id, hold_id, price_cents,
			payment_method, status, overbooking, qr_code, refund_cents, no_show_fee_cents, cancel_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TripID, t.SeatNumber, t.FromOrdinal, t.ToOrdinal, t.PassengerID, ptrArg(t.HoldID), t.PriceCents,
		t.PaymentMethod, t.Status, t.Overbooking, t.QRCode, t.RefundCents, t.NoShowFeeCents, t.CancelReason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// UpdateTx writes the mutable columns if the ticket is still in status from.
func (r *TicketRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t model.Ticket, from model.TicketStatus) (bool, error) {
	return affectedOne(tx.ExecContext(ctx,
		`UPDATE tickets SET status = ?, payment_method = ?, overbooking = ?, refund_cents = ?, no_show_fee_cents = ?,
			cancel_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		t.Status, t.PaymentMethod, t.Overbooking, t.RefundCents, t.NoShowFeeCents, t.CancelReason, t.UpdatedAt, t.ID, from))
}
