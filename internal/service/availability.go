package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

// SeatStatus is the state of a seat for one queried segment.
type SeatStatus string

const (
	SeatFree     SeatStatus = "FREE"
	SeatHeld     SeatStatus = "HELD"
	SeatOccupied SeatStatus = "OCCUPIED"
)

// SeatAvailability is one row of an availability answer.
type SeatAvailability struct {
	SeatNumber string     `json:"seat_number"`
	Status     SeatStatus `json:"status"`
}

// AvailabilityService computes per-seat status for a segment. Answers are
// advisory: they reflect committed state at query time and are re-validated
// by every hold creation.
type AvailabilityService struct {
	*base
	topo *TopologyService
}

// Availability returns the status of every seat on the trip's bus for
// [from, to).
func (s *AvailabilityService) Availability(ctx context.Context, tripID uint64, from, to int) ([]SeatAvailability, error) {
	seg := model.Segment{From: from, To: to}
	if !seg.Valid() {
		return nil, fmt.Errorf("%w: [%d,%d)", domain.ErrInvalidSegment, from, to)
	}
	var out []SeatAvailability
	err := s.read(ctx, func(tx Tx) error {
		trip, err := tx.Trip(ctx, tripID)
		if err != nil {
			return err
		}
		if err := s.topo.ValidateSegment(ctx, trip.RouteID, seg); err != nil {
			return err
		}
		_, seats, err := s.topo.tripSeats(ctx, trip)
		if err != nil {
			return err
		}
		holds, err := tx.ActiveHolds(ctx, tripID, "")
		if err != nil {
			return err
		}
		tickets, err := tx.LiveTickets(ctx, tripID, "")
		if err != nil {
			return err
		}
		out = seatStatuses(seats, holds, tickets, seg, s.Clock.Now())
		return nil
	})
	return out, err
}

// seatStatuses classifies each seat: OCCUPIED if a live ticket overlaps seg,
// else HELD if an unexpired ACTIVE hold overlaps, else FREE.
func seatStatuses(seats []string, holds []model.SeatHold, tickets []model.Ticket, seg model.Segment, now time.Time) []SeatAvailability {
	status := make(map[string]SeatStatus, len(seats))
	for _, h := range holds {
		if h.Live(now) && h.Segment().Overlaps(seg) {
			status[h.SeatNumber] = SeatHeld
		}
	}
	for _, t := range tickets {
		if t.Status.Live() && t.Segment().Overlaps(seg) {
			status[t.SeatNumber] = SeatOccupied
		}
	}
	out := make([]SeatAvailability, 0, len(seats))
	for _, n := range seats {
		st, ok := status[n]
		if !ok {
			st = SeatFree
		}
		out = append(out, SeatAvailability{SeatNumber: n, Status: st})
	}
	return out
}

// saturated reports whether no seat is FREE on seg.
func saturated(seats []string, holds []model.SeatHold, tickets []model.Ticket, seg model.Segment, now time.Time) bool {
	for _, a := range seatStatuses(seats, holds, tickets, seg, now) {
		if a.Status == SeatFree {
			return false
		}
	}
	return true
}

// occupancyRate is the fraction of the trip's seat-segment capacity covered
// by live tickets: sum of ticket spans over capacity times route span.
func occupancyRate(capacity, span int, tickets []model.Ticket) float64 {
	if capacity <= 0 || span <= 0 {
		return 0
	}
	used := 0
	for _, t := range tickets {
		if t.Status.Live() {
			used += t.Segment().Legs()
		}
	}
	return float64(used) / float64(capacity*span)
}
