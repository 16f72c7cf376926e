package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
)

// Store implements service.Store on MySQL/InnoDB. A unit of work is one
// READ COMMITTED transaction; LockTrip and LockSeat become row locks, so
// the lock order trip then seat is the same for every writer.
type Store struct {
	*TopologyRepo
	db           *sql.DB
	trips        TripRepo
	holds        SeatHoldRepo
	tickets      TicketRepo
	overbookings OverbookingRepo
	parcels      ParcelRepo
}

var _ service.Store = (*Store)(nil)

// NewStore returns a Store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{TopologyRepo: NewTopologyRepo(db), db: db}
}

// DB exposes the pool for health checks and migrations.
func (s *Store) DB() *sql.DB { return s.db }

// Atomic runs fn in a transaction and commits it when fn succeeds.
// Deadlocks and lock wait timeouts come back as domain.ErrWriteConflict.
func (s *Store) Atomic(ctx context.Context, fn func(tx service.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(err)
	}
	if err := fn(&txn{s: s, tx: tx}); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	return classify(tx.Commit())
}

// Read runs fn in a read-only transaction.
func (s *Store) Read(ctx context.Context, fn func(tx service.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(&txn{s: s, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txn adapts the table repos to service.Tx for one transaction.
type txn struct {
	s  *Store
	tx *sql.Tx
}

func (t *txn) Trip(ctx context.Context, tripID uint64) (model.Trip, error) {
	return t.s.trips.GetTx(ctx, t.tx, tripID, "")
}

func (t *txn) LockTrip(ctx context.Context, tripID uint64, exclusive bool) (model.Trip, error) {
	lock := "LOCK IN SHARE MODE"
	if exclusive {
		lock = "FOR UPDATE"
	}
	return t.s.trips.GetTx(ctx, t.tx, tripID, lock)
}

func (t *txn) LockSeat(ctx context.Context, tripID uint64, seatNumber string) error {
	return t.s.trips.LockSeatTx(ctx, t.tx, tripID, seatNumber)
}

func (t *txn) UpdateTrip(ctx context.Context, tr model.Trip, from model.TripStatus) (bool, error) {
	return t.s.trips.UpdateTx(ctx, t.tx, tr, from)
}

func (t *txn) TripsDue(ctx context.Context, status model.TripStatus, before time.Time) ([]model.Trip, error) {
	return t.s.trips.DueTx(ctx, t.tx, status, before)
}

func (t *txn) Hold(ctx context.Context, holdID uint64) (model.SeatHold, error) {
	return t.s.holds.GetTx(ctx, t.tx, holdID)
}

func (t *txn) ActiveHolds(ctx context.Context, tripID uint64, seatNumber string) ([]model.SeatHold, error) {
	return t.s.holds.ActiveTx(ctx, t.tx, tripID, seatNumber)
}

func (t *txn) InsertHold(ctx context.Context, h *model.SeatHold) error {
	return t.s.holds.CreateTx(ctx, t.tx, h)
}

func (t *txn) SetHoldStatus(ctx context.Context, holdID uint64, from, to model.HoldStatus, at time.Time) (bool, error) {
	return t.s.holds.SetStatusTx(ctx, t.tx, holdID, from, to, at)
}

func (t *txn) ExpireHolds(ctx context.Context, now time.Time) ([]model.SeatHold, error) {
	return t.s.holds.ExpireDueTx(ctx, t.tx, now)
}

func (t *txn) PurgeHolds(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.s.holds.PurgeTx(ctx, t.tx, cutoff)
}

func (t *txn) Ticket(ctx context.Context, ticketID uint64) (model.Ticket, error) {
	return t.s.tickets.GetTx(ctx, t.tx, ticketID)
}

func (t *txn) TicketByQR(ctx context.Context, code string) (model.Ticket, error) {
	return t.s.tickets.GetByQRTx(ctx, t.tx, code)
}

func (t *txn) LiveTickets(ctx context.Context, tripID uint64, seatNumber string) ([]model.Ticket, error) {
	return t.s.tickets.LiveTx(ctx, t.tx, tripID, seatNumber)
}

func (t *txn) TicketsByTrip(ctx context.Context, tripID uint64) ([]model.Ticket, error) {
	return t.s.tickets.ListByTripTx(ctx, t.tx, tripID)
}

func (t *txn) InsertTicket(ctx context.Context, tk *model.Ticket) error {
	return t.s.tickets.CreateTx(ctx, t.tx, tk)
}

func (t *txn) UpdateTicket(ctx context.Context, tk model.Ticket, from model.TicketStatus) (bool, error) {
	return t.s.tickets.UpdateTx(ctx, t.tx, tk, from)
}

func (t *txn) Overbooking(ctx context.Context, id uint64) (model.OverbookingRequest, error) {
	return t.s.overbookings.GetTx(ctx, t.tx, id)
}

func (t *txn) OverbookingByTicket(ctx context.Context, ticketID uint64) (model.OverbookingRequest, error) {
	return t.s.overbookings.GetByTicketTx(ctx, t.tx, ticketID)
}

func (t *txn) Overbookings(ctx context.Context, status model.OverbookingStatus, tripID uint64) ([]model.OverbookingRequest, error) {
	return t.s.overbookings.ListTx(ctx, t.tx, status, tripID)
}

func (t *txn) DueOverbookings(ctx context.Context, now time.Time) ([]model.OverbookingRequest, error) {
	return t.s.overbookings.DueTx(ctx, t.tx, now)
}

func (t *txn) InsertOverbooking(ctx context.Context, r *model.OverbookingRequest) error {
	return t.s.overbookings.CreateTx(ctx, t.tx, r)
}

func (t *txn) UpdateOverbooking(ctx context.Context, r model.OverbookingRequest, from model.OverbookingStatus) (bool, error) {
	return t.s.overbookings.UpdateTx(ctx, t.tx, r, from)
}

func (t *txn) Parcel(ctx context.Context, code string) (model.Parcel, error) {
	return t.s.parcels.GetTx(ctx, t.tx, code)
}

func (t *txn) InsertParcel(ctx context.Context, p *model.Parcel) error {
	return t.s.parcels.CreateTx(ctx, t.tx, p)
}

func (t *txn) UpdateParcel(ctx context.Context, p model.Parcel, from model.ParcelStatus) (bool, error) {
	return t.s.parcels.UpdateTx(ctx, t.tx, p, from)
}
