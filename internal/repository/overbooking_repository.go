package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

const overbookingCols = `id, trip_id, ticket_id, status, reason, notes, requested_by, resolved_by, requested_at, expires_at, resolved_at`

// OverbookingRepo persists overbooking_requests. ticket_id is unique: a
// ticket carries at most one request over its lifetime.
type OverbookingRepo struct{}

func scanOverbooking(row rowScanner) (model.OverbookingRequest, error) {
	var (
		r          model.OverbookingRequest
		resolvedBy sql.NullInt64
		resolvedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.TripID, &r.TicketID, &r.Status, &r.Reason, &r.Notes, &r.RequestedBy, &resolvedBy,
		&r.RequestedAt, &r.ExpiresAt, &resolvedAt)
	if err != nil {
		return model.OverbookingRequest{}, err
	}
	r.ResolvedBy = nullUint(resolvedBy)
	r.ResolvedAt = nullTime(resolvedAt)
	return r, nil
}

func (o *OverbookingRepo) query(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]model.OverbookingRequest, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OverbookingRequest
	for rows.Next() {
		r, err := scanOverbooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (o *OverbookingRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.OverbookingRequest, error) {
	r, err := scanOverbooking(tx.QueryRowContext(ctx, `SELECT `+overbookingCols+` FROM overbooking_requests WHERE id = ?`, id))
	if err != nil {
		return model.OverbookingRequest{}, notFound(err, domain.ErrOverbookingNotFound, id)
	}
	return r, nil
}

func (o *OverbookingRepo) GetByTicketTx(ctx context.Context, tx *sql.Tx, ticketID uint64) (model.OverbookingRequest, error) {
	r, err := scanOverbooking(tx.QueryRowContext(ctx,
		`SELECT `+overbookingCols+` FROM overbooking_requests WHERE ticket_id = ?`, ticketID))
	if err != nil {
		return model.OverbookingRequest{}, notFound(err, domain.ErrOverbookingNotFound, "ticket "+strconv.FormatUint(ticketID, 10))
	}
	return r, nil
}

// ListTx filters by status and trip; zero values match everything.
func (o *OverbookingRepo) ListTx(ctx context.Context, tx *sql.Tx, status model.OverbookingStatus, tripID uint64) ([]model.OverbookingRequest, error) {
	q := `SELECT ` + overbookingCols + ` FROM overbooking_requests WHERE 1=1`
	var args []any
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	if tripID != 0 {
		q += ` AND trip_id = ?`
		args = append(args, tripID)
	}
	return o.query(ctx, tx, q+` ORDER BY id`, args...)
}

// DueTx lists PENDING requests whose expires_at has passed.
func (o *OverbookingRepo) DueTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.OverbookingRequest, error) {
	return o.query(ctx, tx, `SELECT `+overbookingCols+` FROM overbooking_requests
		WHERE status = 'PENDING' AND expires_at <= ? ORDER BY id`, now)
}

func (o *OverbookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, r *model.OverbookingRequest) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO overbooking_requests (trip_id, ticket_id, status, reason, notes, requested_by, requested_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TripID, r.TicketID, r.Status, r.Reason, r.Notes, r.RequestedBy, r.RequestedAt, r.ExpiresAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = uint64(id)
	return nil
}

// UpdateTx records a resolution if the request is still in status from.
func (o *OverbookingRepo) UpdateTx(ctx context.Context, tx *sql.Tx, r model.OverbookingRequest, from model.OverbookingStatus) (bool, error) {
	return affectedOne(tx.ExecContext(ctx,
		`UPDATE overbooking_requests SET status = ?, notes = ?, resolved_by = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		r.Status, r.Notes, ptrArg(r.ResolvedBy), ptrArg(r.ResolvedAt), r.ID, from))
}
