package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

const holdCols = `id, hold_token, trip_id, seat_number, from_ordinal, to_ordinal, user_id, status, expires_at, created_at, updated_at`

// SeatHoldRepo provides data access to the seat_holds table. Holds are
// never updated in place except for their status; every status change is
// a compare-and-swap on the previous status. All timestamps are UTC.
type SeatHoldRepo struct{}

func scanHold(row rowScanner) (model.SeatHold, error) {
	var h model.SeatHold
	err := row.Scan(&h.ID, &h.HoldToken, &h.TripID, &h.SeatNumber, &h.FromOrdinal, &h.ToOrdinal,
		&h.UserID, &h.Status, &h.ExpiresAt, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

func (r *SeatHoldRepo) query(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]model.SeatHold, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SeatHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetTx loads one hold by ID.
func (r *SeatHoldRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.SeatHold, error) {
	h, err := scanHold(tx.QueryRowContext(ctx, `SELECT `+holdCols+` FROM seat_holds WHERE id = ?`, id))
	if err != nil {
		return model.SeatHold{}, notFound(err, domain.ErrHoldNotFound, id)
	}
	return h, nil
}

// ActiveTx lists ACTIVE holds of a trip, optionally for one seat. Expired
// but not yet swept holds are included; the caller decides what to do
// with them.
func (r *SeatHoldRepo) ActiveTx(ctx context.Context, tx *sql.Tx, tripID uint64, seatNumber string) ([]model.SeatHold, error) {
	if seatNumber == "" {
		return r.query(ctx, tx, `SELECT `+holdCols+` FROM seat_holds WHERE trip_id = ? AND status = 'ACTIVE' ORDER BY id`, tripID)
	}
	return r.query(ctx, tx, `SELECT `+holdCols+` FROM seat_holds WHERE trip_id = ? AND seat_number = ? AND status = 'ACTIVE' ORDER BY id`,
		tripID, seatNumber)
}

// CreateTx inserts a hold and sets its generated ID.
func (r *SeatHoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h *model.SeatHold) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO seat_holds (hold_token, trip_id, seat_number, from_ordinal, to_ordinal, user_id, status, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.HoldToken, h.TripID, h.SeatNumber, h.FromOrdinal, h.ToOrdinal, h.UserID, h.Status, h.ExpiresAt, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	return nil
}

// SetStatusTx moves a hold from one status to another.
func (r *SeatHoldRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.HoldStatus, at time.Time) (bool, error) {
	return affectedOne(tx.ExecContext(ctx,
		`UPDATE seat_holds SET status = ?, updated_at = ? WHERE id = ? AND status = ?`, to, at, id, from))
}

// ExpireDueTx locks every ACTIVE hold with expires_at <= now, marks them
// EXPIRED and returns them. Holds converted or released concurrently are
// skipped by the status guard.
func (r *SeatHoldRepo) ExpireDueTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.SeatHold, error) {
	due, err := r.query(ctx, tx,
		`SELECT `+holdCols+` FROM seat_holds WHERE status = 'ACTIVE' AND expires_at <= ? ORDER BY id FOR UPDATE`, now)
	if err != nil {
		return nil, err
	}
	out := due[:0]
	for _, h := range due {
		ok, err := r.SetStatusTx(ctx, tx, h.ID, model.HoldActive, model.HoldExpired, now)
		if err != nil {
			return nil, err
		}
		if ok {
			h.Status = model.HoldExpired
			h.UpdatedAt = now
			out = append(out, h)
		}
	}
	return out, nil
}

// PurgeTx deletes terminal holds last touched before cutoff.
func (r *SeatHoldRepo) PurgeTx(ctx context.Context, tx *sql.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM seat_holds WHERE status <> 'ACTIVE' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
