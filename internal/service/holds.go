package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/queue"
)

// HoldRequest asks for one seat on one segment. The TTL is not part of the
// request; it comes from the reservation policy.
type HoldRequest struct {
	TripID     uint64 `json:"trip_id"`
	SeatNumber string `json:"seat_number" validate:"required"`
	From       int    `json:"from_ordinal" validate:"gte=0"`
	To         int    `json:"to_ordinal" validate:"gte=0"`
}

// HoldService is the primary concurrency-control point: it grants, releases
// and expires holds.
type HoldService struct {
	*base
	topo *TopologyService
}

// CreateHold atomically checks the overlap invariant for the seat and
// inserts an ACTIVE hold expiring after the policy TTL. Conflicting ACTIVE
// holds whose expiry has passed are expired on the way.
func (s *HoldService) CreateHold(ctx context.Context, rc domain.RequestContext, req HoldRequest) (model.SeatHold, error) {
	seg := model.Segment{From: req.From, To: req.To}
	if !seg.Valid() {
		return model.SeatHold{}, fmt.Errorf("%w: [%d,%d)", domain.ErrInvalidSegment, req.From, req.To)
	}
	var trip model.Trip
	if err := s.read(ctx, func(tx Tx) (err error) {
		trip, err = tx.Trip(ctx, req.TripID)
		return err
	}); err != nil {
		return model.SeatHold{}, err
	}
	if err := s.topo.ValidateSegment(ctx, trip.RouteID, seg); err != nil {
		return model.SeatHold{}, err
	}
	if err := s.topo.seatOnTrip(ctx, trip, req.SeatNumber); err != nil {
		return model.SeatHold{}, err
	}

	var hold model.SeatHold
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		trip, err := tx.LockTrip(ctx, req.TripID, false)
		if err != nil {
			return err
		}
		if !trip.SalesOpen() {
			return fmt.Errorf("%w: trip %d is %s", domain.ErrTripNotBookable, trip.ID, trip.Status)
		}
		if err := tx.LockSeat(ctx, trip.ID, req.SeatNumber); err != nil {
			return err
		}
		now := s.Clock.Now()
		if err := s.checkSeatFree(ctx, tx, trip.ID, req.SeatNumber, seg, 0, events); err != nil {
			if errors.Is(err, domain.ErrSegmentConflict) && s.segmentSaturated(ctx, tx, trip, seg) {
				return fmt.Errorf("%w: no free seat on [%d,%d) of trip %d", domain.ErrCapacityExceeded, seg.From, seg.To, trip.ID)
			}
			return err
		}
		hold = model.SeatHold{
			HoldToken:   uuid.NewString(),
			TripID:      trip.ID,
			SeatNumber:  req.SeatNumber,
			FromOrdinal: seg.From,
			ToOrdinal:   seg.To,
			UserID:      rc.UserID,
			Status:      model.HoldActive,
			ExpiresAt:   now.Add(s.Policy.HoldTTL),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertHold(ctx, &hold); err != nil {
			return err
		}
		ev := s.event(queue.HoldCreated, rc.UserID)
		fillHold(&ev, hold)
		*events = append(*events, ev)
		return nil
	})
	if err != nil {
		return model.SeatHold{}, err
	}
	s.Log.LogHold("CREATE", hold.ID, fmt.Sprintf("trip=%d seat=%s segment=[%d,%d) expires=%s",
		hold.TripID, hold.SeatNumber, hold.FromOrdinal, hold.ToOrdinal, hold.ExpiresAt.Format("15:04:05")))
	return hold, nil
}

// checkSeatFree is the authoritative overlap check for one seat. The caller
// must hold the seat lock. skipHold excludes a hold being converted. Stale
// ACTIVE holds met on the way are moved to EXPIRED.
func (s *base) checkSeatFree(ctx context.Context, tx Tx, tripID uint64, seat string, seg model.Segment, skipHold uint64, events *[]queue.Event) error {
	now := s.Clock.Now()
	holds, err := tx.ActiveHolds(ctx, tripID, seat)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if h.ID == skipHold {
			continue
		}
		if !h.Live(now) {
			ok, err := tx.SetHoldStatus(ctx, h.ID, model.HoldActive, model.HoldExpired, now)
			if err != nil {
				return err
			}
			if ok {
				ev := s.event(queue.HoldExpired, 0)
				fillHold(&ev, h)
				*events = append(*events, ev)
			}
			continue
		}
		if h.Segment().Overlaps(seg) {
			return fmt.Errorf("%w: seat %s [%d,%d) held by hold %d", domain.ErrSegmentConflict, seat, h.FromOrdinal, h.ToOrdinal, h.ID)
		}
	}
	tickets, err := tx.LiveTickets(ctx, tripID, seat)
	if err != nil {
		return err
	}
	for _, t := range tickets {
		if t.Blocking() && t.Segment().Overlaps(seg) {
			return fmt.Errorf("%w: seat %s [%d,%d) sold on ticket %d", domain.ErrSegmentConflict, seat, t.FromOrdinal, t.ToOrdinal, t.ID)
		}
	}
	return nil
}

// segmentSaturated is an advisory check used to tell a seat conflict apart
// from a full segment. Errors read as "not saturated".
func (s *HoldService) segmentSaturated(ctx context.Context, tx Tx, trip model.Trip, seg model.Segment) bool {
	_, seats, err := s.topo.tripSeats(ctx, trip)
	if err != nil {
		return false
	}
	holds, err := tx.ActiveHolds(ctx, trip.ID, "")
	if err != nil {
		return false
	}
	tickets, err := tx.LiveTickets(ctx, trip.ID, "")
	if err != nil {
		return false
	}
	return saturated(seats, holds, tickets, seg, s.Clock.Now())
}

// Release moves an ACTIVE hold to RELEASED. Releasing a hold that is
// already terminal is a no-op and returns it unchanged.
func (s *HoldService) Release(ctx context.Context, rc domain.RequestContext, holdID uint64) (model.SeatHold, error) {
	var hold model.SeatHold
	if err := s.read(ctx, func(tx Tx) (err error) {
		hold, err = tx.Hold(ctx, holdID)
		return err
	}); err != nil {
		return model.SeatHold{}, err
	}
	if hold.Status != model.HoldActive {
		return hold, nil
	}
	released := false
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		released = false
		if _, err := tx.LockTrip(ctx, hold.TripID, false); err != nil {
			return err
		}
		if err := tx.LockSeat(ctx, hold.TripID, hold.SeatNumber); err != nil {
			return err
		}
		h, err := tx.Hold(ctx, holdID)
		if err != nil {
			return err
		}
		hold = h
		if h.Status != model.HoldActive {
			return nil
		}
		now := s.Clock.Now()
		ok, err := tx.SetHoldStatus(ctx, h.ID, model.HoldActive, model.HoldReleased, now)
		if err != nil {
			return err
		}
		if !ok {
			return lost("hold", h.ID)
		}
		hold.Status = model.HoldReleased
		hold.UpdatedAt = now
		released = true
		ev := s.event(queue.HoldReleased, rc.UserID)
		fillHold(&ev, hold)
		*events = append(*events, ev, seatAvailable(s.event(queue.SeatAvailable, rc.UserID), hold.TripID, hold.SeatNumber, hold.Segment()))
		return nil
	})
	if err != nil {
		return model.SeatHold{}, err
	}
	if released {
		s.Log.LogHold("RELEASE", hold.ID, fmt.Sprintf("trip=%d seat=%s", hold.TripID, hold.SeatNumber))
	}
	return hold, nil
}

// ExpireDue moves every ACTIVE hold past its expiry to EXPIRED and returns
// how many changed. Holds already converted or released are untouched, so
// concurrent or repeated calls never free a segment twice.
func (s *HoldService) ExpireDue(ctx context.Context) (int, error) {
	var expired []model.SeatHold
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		var err error
		expired, err = tx.ExpireHolds(ctx, s.Clock.Now())
		if err != nil {
			return err
		}
		for _, h := range expired {
			ev := s.event(queue.HoldExpired, 0)
			fillHold(&ev, h)
			*events = append(*events, ev, seatAvailable(s.event(queue.SeatAvailable, 0), h.TripID, h.SeatNumber, h.Segment()))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		s.Log.Info("SWEEP", fmt.Sprintf("expired %d holds", len(expired)))
	}
	return len(expired), nil
}

// Purge deletes terminal holds older than the retention period.
func (s *HoldService) Purge(ctx context.Context) (int64, error) {
	var n int64
	err := s.atomic(ctx, func(tx Tx, _ *[]queue.Event) (err error) {
		n, err = tx.PurgeHolds(ctx, s.Clock.Now().Add(-s.Policy.HoldRetention))
		return err
	})
	return n, err
}

// Get returns a hold by ID.
func (s *HoldService) Get(ctx context.Context, holdID uint64) (model.SeatHold, error) {
	var h model.SeatHold
	err := s.read(ctx, func(tx Tx) (err error) {
		h, err = tx.Hold(ctx, holdID)
		return err
	})
	return h, err
}

func fillHold(ev *queue.Event, h model.SeatHold) {
	ev.TripID = h.TripID
	ev.SeatNumber = h.SeatNumber
	ev.FromOrdinal = h.FromOrdinal
	ev.ToOrdinal = h.ToOrdinal
	ev.HoldID = h.ID
	ev.Status = string(h.Status)
}

func seatAvailable(ev queue.Event, tripID uint64, seat string, seg model.Segment) queue.Event {
	ev.TripID = tripID
	ev.SeatNumber = seat
	ev.FromOrdinal = seg.From
	ev.ToOrdinal = seg.To
	return ev
}
