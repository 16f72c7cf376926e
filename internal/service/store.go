// Package service is the reservation engine: segment availability, seat
// holds, the ticket and trip state machines, the overbooking workflow and
// parcel delivery verification.
//
// Services talk to persistence only through Store. Every mutation runs
// inside Store.Atomic; lock scoping is explicit (LockTrip then LockSeat, in
// that order) so that a MySQL implementation can map it onto row locks and
// an in-process implementation onto a mutex.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/segment-reservation/internal/model"
)

// Topology is the read-only reference data consumed by the engine. It is
// safe to call outside a unit of work.
type Topology interface {
	Route(ctx context.Context, routeID uint64) (model.Route, error)
	// StopsOf returns the stops of a route ordered by ordinal.
	StopsOf(ctx context.Context, routeID uint64) ([]model.Stop, error)
	Bus(ctx context.Context, busID uint64) (model.Bus, error)
	// SeatsOf returns the seats of a bus ordered by seat number.
	SeatsOf(ctx context.Context, busID uint64) ([]model.Seat, error)
	// Fare returns the price for a segment; ok is false when no rule matches.
	Fare(ctx context.Context, routeID uint64, from, to int) (cents uint32, ok bool, err error)
}

// Store is the persistence boundary of the engine.
type Store interface {
	Topology
	// Atomic runs fn as one all-or-nothing unit. If fn returns an error
	// nothing it wrote is visible to anyone.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// Read runs fn against the latest committed state without taking write
	// locks. fn must not mutate.
	Read(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and conditional writes available inside a unit of
// work. Set*/Update* methods are compare-and-swap on the current status and
// report false when the record was no longer in the expected state.
type Tx interface {
	Trip(ctx context.Context, tripID uint64) (model.Trip, error)
	// LockTrip loads the trip and locks it: shared for seat operations,
	// exclusive for trip transitions and capacity-wide checks.
	LockTrip(ctx context.Context, tripID uint64, exclusive bool) (model.Trip, error)
	// LockSeat serializes writers of one (trip, seat) pair until the unit ends.
	LockSeat(ctx context.Context, tripID uint64, seatNumber string) error
	UpdateTrip(ctx context.Context, t model.Trip, from model.TripStatus) (bool, error)
	// TripsDue lists trips in status departing at or before before.
	TripsDue(ctx context.Context, status model.TripStatus, before time.Time) ([]model.Trip, error)

	Hold(ctx context.Context, holdID uint64) (model.SeatHold, error)
	// ActiveHolds lists ACTIVE holds of a trip; seatNumber "" means every seat.
	ActiveHolds(ctx context.Context, tripID uint64, seatNumber string) ([]model.SeatHold, error)
	InsertHold(ctx context.Context, h *model.SeatHold) error
	SetHoldStatus(ctx context.Context, holdID uint64, from, to model.HoldStatus, at time.Time) (bool, error)
	// ExpireHolds moves every ACTIVE hold with expires_at <= now to EXPIRED
	// and returns the holds it changed.
	ExpireHolds(ctx context.Context, now time.Time) ([]model.SeatHold, error)
	// PurgeHolds deletes terminal holds last updated before cutoff.
	PurgeHolds(ctx context.Context, cutoff time.Time) (int64, error)

	Ticket(ctx context.Context, ticketID uint64) (model.Ticket, error)
	TicketByQR(ctx context.Context, code string) (model.Ticket, error)
	// LiveTickets lists PENDING_PAYMENT and SOLD tickets of a trip; seatNumber
	// "" means every seat.
	LiveTickets(ctx context.Context, tripID uint64, seatNumber string) ([]model.Ticket, error)
	TicketsByTrip(ctx context.Context, tripID uint64) ([]model.Ticket, error)
	InsertTicket(ctx context.Context, t *model.Ticket) error
	UpdateTicket(ctx context.Context, t model.Ticket, from model.TicketStatus) (bool, error)

	Overbooking(ctx context.Context, id uint64) (model.OverbookingRequest, error)
	// OverbookingByTicket returns ErrOverbookingNotFound when the ticket has none.
	OverbookingByTicket(ctx context.Context, ticketID uint64) (model.OverbookingRequest, error)
	Overbookings(ctx context.Context, status model.OverbookingStatus, tripID uint64) ([]model.OverbookingRequest, error)
	DueOverbookings(ctx context.Context, now time.Time) ([]model.OverbookingRequest, error)
	InsertOverbooking(ctx context.Context, r *model.OverbookingRequest) error
	UpdateOverbooking(ctx context.Context, r model.OverbookingRequest, from model.OverbookingStatus) (bool, error)

	Parcel(ctx context.Context, code string) (model.Parcel, error)
	InsertParcel(ctx context.Context, p *model.Parcel) error
	UpdateParcel(ctx context.Context, p model.Parcel, from model.ParcelStatus) (bool, error)
}
