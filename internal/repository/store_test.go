package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
)

var (
	ctx  = context.Background()
	when = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func tripRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "route_id", "bus_id", "departure_at", "status", "boarding_closed_at", "updated_at"}).
		AddRow(5, 2, 3, when.Add(time.Hour), status, nil, when)
}

func TestAtomicCommitsTripTransition(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM trips WHERE id = ? FOR UPDATE")).WithArgs(5).WillReturnRows(tripRow("SCHEDULED"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE trips SET status = ?")).
		WithArgs(model.TripBoarding, nil, when, 5, model.TripScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Atomic(ctx, func(tx service.Tx) error {
		tr, err := tx.LockTrip(ctx, 5, true)
		require.NoError(t, err)
		require.NotNil(t, tr.BusID)
		assert.EqualValues(t, 3, *tr.BusID)
		assert.Nil(t, tr.BoardingClosedAt)
		tr.Status = model.TripBoarding
		tr.UpdatedAt = when
		ok, err := tx.UpdateTrip(ctx, tr, model.TripScheduled)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicMapsDeadlockToWriteConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM trips WHERE id = ? LOCK IN SHARE MODE")).WithArgs(5).WillReturnRows(tripRow("BOARDING"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO trip_seat_locks")).WithArgs(5, "12").
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()

	err := s.Atomic(ctx, func(tx service.Tx) error {
		if _, err := tx.LockTrip(ctx, 5, false); err != nil {
			return err
		}
		return tx.LockSeat(ctx, 5, "12")
	})
	assert.ErrorIs(t, err, domain.ErrWriteConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownTripRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM trips WHERE id = ?")).WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.Atomic(ctx, func(tx service.Tx) error {
		_, err := tx.Trip(ctx, 99)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrUnknownTrip)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireHoldsSkipsHoldsThatMovedOn(t *testing.T) {
	s, mock := newMock(t)
	cols := []string{"id", "hold_token", "trip_id", "seat_number", "from_ordinal", "to_ordinal", "user_id", "status", "expires_at", "created_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM seat_holds WHERE status = 'ACTIVE' AND expires_at <= ? ORDER BY id FOR UPDATE")).
		WithArgs(when).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "a", 5, "3", 0, 2, 11, "ACTIVE", when.Add(-time.Minute), when.Add(-11*time.Minute), when.Add(-11*time.Minute)).
			AddRow(2, "b", 5, "4", 1, 3, 12, "ACTIVE", when.Add(-time.Second), when.Add(-10*time.Minute), when.Add(-10*time.Minute)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_holds SET status = ?")).
		WithArgs(model.HoldExpired, when, 1, model.HoldActive).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_holds SET status = ?")).
		WithArgs(model.HoldExpired, when, 2, model.HoldActive).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var expired []model.SeatHold
	require.NoError(t, s.Atomic(ctx, func(tx service.Tx) (err error) {
		expired, err = tx.ExpireHolds(ctx, when)
		return err
	}))
	require.Len(t, expired, 1)
	assert.EqualValues(t, 1, expired[0].ID)
	assert.Equal(t, model.HoldExpired, expired[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateParcelCode(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO parcels")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'PCL-001' for key 'parcels.code'"})
	mock.ExpectRollback()

	err := s.Atomic(ctx, func(tx service.Tx) error {
		return tx.InsertParcel(ctx, &model.Parcel{Code: "PCL-001", Status: model.ParcelCreated, CreatedAt: when, UpdatedAt: when})
	})
	assert.ErrorIs(t, err, domain.ErrParcelExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTicketWithoutHold(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets")).
		WithArgs(5, "3", 0, 4, 99, nil, 50000, model.PaymentCash, model.TicketPendingPayment, model.OverbookingPending,
			"QRCODE0000000001", 0, 0, "", when, when).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectCommit()

	tk := model.Ticket{TripID: 5, SeatNumber: "3", FromOrdinal: 0, ToOrdinal: 4, PassengerID: 99, PriceCents: 50000,
		PaymentMethod: model.PaymentCash, Status: model.TicketPendingPayment, Overbooking: model.OverbookingPending,
		QRCode: "QRCODE0000000001", CreatedAt: when, UpdatedAt: when}
	require.NoError(t, s.Atomic(ctx, func(tx service.Tx) error { return tx.InsertTicket(ctx, &tk) }))
	assert.EqualValues(t, 41, tk.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverbookingByTicketNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM overbooking_requests WHERE ticket_id = ?")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := s.Read(ctx, func(tx service.Tx) error {
		_, err := tx.OverbookingByTicket(ctx, 7)
		assert.ErrorIs(t, err, domain.ErrOverbookingNotFound)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFareLookup(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT price_cents FROM fares")).WithArgs(2, 0, 3).
		WillReturnRows(sqlmock.NewRows([]string{"price_cents"}).AddRow(90000))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT price_cents FROM fares")).WithArgs(2, 1, 3).
		WillReturnRows(sqlmock.NewRows([]string{"price_cents"}))

	cents, ok, err := s.Fare(ctx, 2, 0, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 90000, cents)

	_, ok, err = s.Fare(ctx, 2, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
