package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

const parcelCols = `id, code, trip_id, status, otp_hash, proof_url, failure_reason, delivered_at, created_at, updated_at`

// ParcelRepo persists parcels keyed by their unique code. Only the bcrypt
// hash of the delivery OTP is stored.
type ParcelRepo struct{}

func (r *ParcelRepo) GetTx(ctx context.Context, tx *sql.Tx, code string) (model.Parcel, error) {
	var (
		p           model.Parcel
		tripID      sql.NullInt64
		deliveredAt sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `SELECT `+parcelCols+` FROM parcels WHERE code = ?`, code).Scan(
		&p.ID, &p.Code, &tripID, &p.Status, &p.OtpHash, &p.ProofURL, &p.FailureReason, &deliveredAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Parcel{}, notFound(err, domain.ErrParcelNotFound, code)
	}
	p.TripID = nullUint(tripID)
	p.DeliveredAt = nullTime(deliveredAt)
	return p, nil
}

// CreateTx inserts a parcel. A duplicate code is ErrParcelExists.
func (r *ParcelRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Parcel) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO parcels (code, trip_id, status, otp_hash, proof_url, failure_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Code, ptrArg(p.TripID), p.Status, p.OtpHash, p.ProofURL, p.FailureReason, p.CreatedAt, p.UpdatedAt)
	if isDuplicate(err) {
		return fmt.Errorf("%w: %s", domain.ErrParcelExists, p.Code)
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// UpdateTx writes the mutable columns if the parcel is still in status from.
func (r *ParcelRepo) UpdateTx(ctx context.Context, tx *sql.Tx, p model.Parcel, from model.ParcelStatus) (bool, error) {
	return affectedOne(tx.ExecContext(ctx,
		`UPDATE parcels SET trip_id = ?, status = ?, proof_url = ?, failure_reason = ?, delivered_at = ?, updated_at = ?
		 WHERE code = ? AND status = ?`,
		ptrArg(p.TripID), p.Status, p.ProofURL, p.FailureReason, ptrArg(p.DeliveredAt), p.UpdatedAt, p.Code, from))
}
