package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

const tripCols = `id, route_id, bus_id, departure_at, status, boarding_closed_at, updated_at`

// TripRepo reads and updates rows of the trips table and the companion
// trip_seat_locks table that serializes writers of one seat.
type TripRepo struct{}

func scanTrip(row rowScanner) (model.Trip, error) {
	var (
		t      model.Trip
		busID  sql.NullInt64
		closed sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.RouteID, &busID, &t.DepartureAt, &t.Status, &closed, &t.UpdatedAt); err != nil {
		return model.Trip{}, err
	}
	t.BusID = nullUint(busID)
	t.BoardingClosedAt = nullTime(closed)
	return t, nil
}

// GetTx loads a trip. lock is appended to the query verbatim ("" for a
// plain read, "FOR UPDATE" or "LOCK IN SHARE MODE").
func (r *TripRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64, lock string) (model.Trip, error) {
	q := `SELECT ` + tripCols + ` FROM trips WHERE id = ? ` + lock
	t, err := scanTrip(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return model.Trip{}, notFound(err, domain.ErrUnknownTrip, id)
	}
	return t, nil
}

// LockSeatTx takes a row lock on (trip, seat). The lock row is created on
// first use; INSERT IGNORE keeps concurrent creators from failing.
func (r *TripRepo) LockSeatTx(ctx context.Context, tx *sql.Tx, tripID uint64, seatNumber string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO trip_seat_locks (trip_id, seat_number) VALUES (?, ?)`, tripID, seatNumber); err != nil {
		return err
	}
	var id uint64
	return tx.QueryRowContext(ctx,
		`SELECT trip_id FROM trip_seat_locks WHERE trip_id = ? AND seat_number = ? FOR UPDATE`,
		tripID, seatNumber).Scan(&id)
}

// UpdateTx writes status and boarding_closed_at if the row is still in
// status from.
func (r *TripRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t model.Trip, from model.TripStatus) (bool, error) {
	return affectedOne(tx.ExecContext(ctx,
		`UPDATE trips SET status = ?, boarding_closed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		t.Status, ptrArg(t.BoardingClosedAt), t.UpdatedAt, t.ID, from))
}

// DueTx lists trips in status departing at or before before.
func (r *TripRepo) DueTx(ctx context.Context, tx *sql.Tx, status model.TripStatus, before time.Time) ([]model.Trip, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+tripCols+` FROM trips WHERE status = ? AND departure_at <= ? ORDER BY id`, status, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
