package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

// TopologyService answers route and seat-inventory questions. It never
// writes.
type TopologyService struct {
	*base
}

// StopsOf returns the ordered stops of a route.
func (s *TopologyService) StopsOf(ctx context.Context, routeID uint64) ([]model.Stop, error) {
	if _, err := s.Store.Route(ctx, routeID); err != nil {
		return nil, err
	}
	return s.Store.StopsOf(ctx, routeID)
}

// OrdinalOf returns the ordinal of stopID on routeID, or ErrUnknownStop if
// the stop is not on the route.
func (s *TopologyService) OrdinalOf(ctx context.Context, routeID, stopID uint64) (int, error) {
	stops, err := s.StopsOf(ctx, routeID)
	if err != nil {
		return 0, err
	}
	for _, st := range stops {
		if st.ID == stopID {
			return st.Ordinal, nil
		}
	}
	return 0, fmt.Errorf("%w: stop %d on route %d", domain.ErrUnknownStop, stopID, routeID)
}

// SegmentBetween resolves two stop IDs into a validated segment.
func (s *TopologyService) SegmentBetween(ctx context.Context, routeID, fromStopID, toStopID uint64) (model.Segment, error) {
	from, err := s.OrdinalOf(ctx, routeID, fromStopID)
	if err != nil {
		return model.Segment{}, err
	}
	to, err := s.OrdinalOf(ctx, routeID, toStopID)
	if err != nil {
		return model.Segment{}, err
	}
	seg := model.Segment{From: from, To: to}
	if !seg.Valid() {
		return model.Segment{}, fmt.Errorf("%w: [%d,%d)", domain.ErrInvalidSegment, from, to)
	}
	return seg, nil
}

// ValidateSegment checks that seg is well formed and that both ends are
// stop ordinals of the route.
func (s *TopologyService) ValidateSegment(ctx context.Context, routeID uint64, seg model.Segment) error {
	if !seg.Valid() {
		return fmt.Errorf("%w: [%d,%d)", domain.ErrInvalidSegment, seg.From, seg.To)
	}
	stops, err := s.StopsOf(ctx, routeID)
	if err != nil {
		return err
	}
	var fromOK, toOK bool
	for _, st := range stops {
		fromOK = fromOK || st.Ordinal == seg.From
		toOK = toOK || st.Ordinal == seg.To
	}
	if !fromOK {
		return fmt.Errorf("%w: ordinal %d on route %d", domain.ErrUnknownStop, seg.From, routeID)
	}
	if !toOK {
		return fmt.Errorf("%w: ordinal %d on route %d", domain.ErrUnknownStop, seg.To, routeID)
	}
	return nil
}

// SeatsOf returns the seat numbers of a bus.
func (s *TopologyService) SeatsOf(ctx context.Context, busID uint64) ([]string, error) {
	seats, err := s.Store.SeatsOf(ctx, busID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seats))
	for _, st := range seats {
		out = append(out, st.SeatNumber)
	}
	return out, nil
}

// tripSeats returns the bus and seat numbers assigned to a trip.
func (s *TopologyService) tripSeats(ctx context.Context, trip model.Trip) (model.Bus, []string, error) {
	if trip.BusID == nil {
		return model.Bus{}, nil, fmt.Errorf("%w: trip %d", domain.ErrTripHasNoBus, trip.ID)
	}
	bus, err := s.Store.Bus(ctx, *trip.BusID)
	if err != nil {
		return model.Bus{}, nil, err
	}
	seats, err := s.SeatsOf(ctx, bus.ID)
	if err != nil {
		return model.Bus{}, nil, err
	}
	return bus, seats, nil
}

// seatOnTrip checks that seatNumber exists on the trip's bus.
func (s *TopologyService) seatOnTrip(ctx context.Context, trip model.Trip, seatNumber string) error {
	_, seats, err := s.tripSeats(ctx, trip)
	if err != nil {
		return err
	}
	for _, n := range seats {
		if n == seatNumber {
			return nil
		}
	}
	return fmt.Errorf("%w: seat %q on trip %d", domain.ErrUnknownSeat, seatNumber, trip.ID)
}

// routeSpan is the ordinal distance between the first and last stop.
func (s *TopologyService) routeSpan(ctx context.Context, routeID uint64) (int, error) {
	stops, err := s.StopsOf(ctx, routeID)
	if err != nil {
		return 0, err
	}
	if len(stops) < 2 {
		return 0, nil
	}
	return stops[len(stops)-1].Ordinal - stops[0].Ordinal, nil
}

// fare looks up the price of a segment, falling back to the policy default.
func (s *TopologyService) fare(ctx context.Context, routeID uint64, seg model.Segment) (uint32, error) {
	cents, ok, err := s.Store.Fare(ctx, routeID, seg.From, seg.To)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.Policy.DefaultFareCents, nil
	}
	return cents, nil
}
