package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/queue"
	"github.com/iliyamo/segment-reservation/internal/utils"
)

// OverCapacitySale sells a seat-segment that is already taken on every
// seat. It produces a provisional ticket that needs dispatcher approval.
type OverCapacitySale struct {
	TripID        uint64              `json:"trip_id"`
	SeatNumber    string              `json:"seat_number" validate:"required"`
	From          int                 `json:"from_ordinal" validate:"gte=0"`
	To            int                 `json:"to_ordinal" validate:"gte=0"`
	PassengerID   uint64              `json:"passenger_id" validate:"required"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required,oneof=CASH TRANSFER QR CARD"`
	Reason        string              `json:"reason" validate:"required,max=500"`
}

// OverbookingService gates sales beyond nominal capacity behind an
// approval. Requests are PENDING until approved, rejected or expired;
// rejection and expiry cancel the ticket.
type OverbookingService struct {
	*base
	topo *TopologyService
}

// RequestOverbooking files a PENDING request for an existing
// PENDING_PAYMENT ticket of the trip.
func (s *OverbookingService) RequestOverbooking(ctx context.Context, rc domain.RequestContext, tripID, ticketID uint64, reason string) (model.OverbookingRequest, error) {
	var req model.OverbookingRequest
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		trip, err := tx.LockTrip(ctx, tripID, true)
		if err != nil {
			return err
		}
		t, err := tx.Ticket(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.TripID != trip.ID {
			return fmt.Errorf("%w: ticket %d on trip %d", domain.ErrTicketNotFound, ticketID, tripID)
		}
		if t.Status != model.TicketPendingPayment {
			return fmt.Errorf("%w: ticket %d is %s", domain.ErrInvalidStateTransition, t.ID, t.Status)
		}
		if _, err := tx.OverbookingByTicket(ctx, t.ID); err == nil {
			return fmt.Errorf("%w: ticket %d already has an overbooking request", domain.ErrInvalidStateTransition, t.ID)
		} else if !errors.Is(err, domain.ErrOverbookingNotFound) {
			return err
		}
		if err := s.checkPolicy(ctx, tx, trip, t.ID); err != nil {
			return err
		}
		req, err = s.insertRequest(ctx, tx, rc, trip, t.ID, reason, events)
		return err
	})
	if err != nil {
		return model.OverbookingRequest{}, err
	}
	s.Log.Info("OVERBOOKING", fmt.Sprintf("request %d filed for ticket %d on trip %d", req.ID, req.TicketID, req.TripID))
	return req, nil
}

// SellOverCapacity issues a provisional ticket on a saturated segment and
// files its overbooking request in the same unit of work. The ticket is
// tagged and therefore exempt from the seat overlap check.
func (s *OverbookingService) SellOverCapacity(ctx context.Context, rc domain.RequestContext, sale OverCapacitySale) (model.Ticket, model.OverbookingRequest, error) {
	seg := model.Segment{From: sale.From, To: sale.To}
	if !seg.Valid() {
		return model.Ticket{}, model.OverbookingRequest{}, fmt.Errorf("%w: [%d,%d)", domain.ErrInvalidSegment, sale.From, sale.To)
	}
	if !sale.PaymentMethod.Valid() {
		return model.Ticket{}, model.OverbookingRequest{}, fmt.Errorf("%w: payment method %q", domain.ErrInvalidRequest, sale.PaymentMethod)
	}
	var trip model.Trip
	if err := s.read(ctx, func(tx Tx) (err error) {
		trip, err = tx.Trip(ctx, sale.TripID)
		return err
	}); err != nil {
		return model.Ticket{}, model.OverbookingRequest{}, err
	}
	if err := s.topo.ValidateSegment(ctx, trip.RouteID, seg); err != nil {
		return model.Ticket{}, model.OverbookingRequest{}, err
	}
	if err := s.topo.seatOnTrip(ctx, trip, sale.SeatNumber); err != nil {
		return model.Ticket{}, model.OverbookingRequest{}, err
	}
	_, seats, err := s.topo.tripSeats(ctx, trip)
	if err != nil {
		return model.Ticket{}, model.OverbookingRequest{}, err
	}
	price, err := s.topo.fare(ctx, trip.RouteID, seg)
	if err != nil {
		return model.Ticket{}, model.OverbookingRequest{}, err
	}
	code, err := utils.NewTicketCode()
	if err != nil {
		return model.Ticket{}, model.OverbookingRequest{}, err
	}

	var ticket model.Ticket
	var req model.OverbookingRequest
	err = s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		trip, err := tx.LockTrip(ctx, sale.TripID, true)
		if err != nil {
			return err
		}
		if !trip.SalesOpen() {
			return fmt.Errorf("%w: trip %d is %s", domain.ErrTripNotBookable, trip.ID, trip.Status)
		}
		holds, err := tx.ActiveHolds(ctx, trip.ID, "")
		if err != nil {
			return err
		}
		tickets, err := tx.LiveTickets(ctx, trip.ID, "")
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		if !saturated(seats, holds, tickets, seg, now) {
			return fmt.Errorf("%w: [%d,%d) of trip %d has a free seat", domain.ErrCapacityAvailable, seg.From, seg.To, trip.ID)
		}
		if err := s.checkPolicy(ctx, tx, trip, 0); err != nil {
			return err
		}
		ticket = model.Ticket{
			TripID:        trip.ID,
			SeatNumber:    sale.SeatNumber,
			FromOrdinal:   seg.From,
			ToOrdinal:     seg.To,
			PassengerID:   sale.PassengerID,
			PriceCents:    price,
			PaymentMethod: sale.PaymentMethod,
			Status:        model.TicketPendingPayment,
			Overbooking:   model.OverbookingPending,
			QRCode:        code,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertTicket(ctx, &ticket); err != nil {
			return err
		}
		*events = append(*events, s.ticketEvent(queue.TicketCreated, rc.UserID, ticket))
		req, err = s.insertRequest(ctx, tx, rc, trip, ticket.ID, sale.Reason, events)
		return err
	})
	if err != nil {
		return model.Ticket{}, model.OverbookingRequest{}, err
	}
	s.Log.Info("OVERBOOKING", fmt.Sprintf("over-capacity ticket %d on trip %d seat %s, request %d", ticket.ID, ticket.TripID, ticket.SeatNumber, req.ID))
	return ticket, req, nil
}

// Approve marks the request APPROVED and tags an over-capacity ticket as a
// sanctioned capacity exception. A request found past its expiry is expired instead
// and the call fails.
func (s *OverbookingService) Approve(ctx context.Context, rc domain.RequestContext, requestID uint64, notes string) (model.OverbookingRequest, error) {
	return s.resolve(ctx, rc, requestID, func(tx Tx, r *model.OverbookingRequest, t *model.Ticket, events *[]queue.Event) error {
		if !t.Status.Live() {
			return fmt.Errorf("%w: ticket %d is %s", domain.ErrInvalidStateTransition, t.ID, t.Status)
		}
		r.Status = model.OverbookingRequestApproved
		r.Notes = notes
		// Tickets issued from a hold already own their seat-segment and
		// stay in the overlap check; only over-capacity sales are tagged.
		if t.Overbooking == model.OverbookingPending {
			t.Overbooking = model.OverbookingApproved
		}
		ev := s.event(queue.OverbookingApproved, rc.UserID)
		fillRequest(&ev, *r)
		*events = append(*events, ev)
		return nil
	})
}

// Reject marks the request REJECTED and cancels its ticket.
func (s *OverbookingService) Reject(ctx context.Context, rc domain.RequestContext, requestID uint64, reason string) (model.OverbookingRequest, error) {
	return s.resolve(ctx, rc, requestID, func(tx Tx, r *model.OverbookingRequest, t *model.Ticket, events *[]queue.Event) error {
		r.Status = model.OverbookingRequestRejected
		r.Notes = reason
		ev := s.event(queue.OverbookingRejected, rc.UserID)
		fillRequest(&ev, *r)
		*events = append(*events, ev)
		s.cancelForRequest(t, "overbooking rejected: "+reason, rc.UserID, events)
		return nil
	})
}

// ExpireDue expires PENDING requests past their expiry and cancels their
// tickets. It returns how many requests changed.
func (s *OverbookingService) ExpireDue(ctx context.Context) (int, error) {
	var due []model.OverbookingRequest
	if err := s.read(ctx, func(tx Tx) (err error) {
		due, err = tx.DueOverbookings(ctx, s.Clock.Now())
		return err
	}); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range due {
		expired, err := s.expireOne(ctx, r.ID)
		if err != nil {
			s.Log.Warn("OVERBOOKING", fmt.Sprintf("expire request %d: %v", r.ID, err))
			continue
		}
		if expired {
			n++
		}
	}
	if n > 0 {
		s.Log.Info("SWEEP", fmt.Sprintf("expired %d overbooking requests", n))
	}
	return n, nil
}

// List returns requests filtered by status and trip (zero values match all).
func (s *OverbookingService) List(ctx context.Context, status model.OverbookingStatus, tripID uint64) ([]model.OverbookingRequest, error) {
	var out []model.OverbookingRequest
	err := s.read(ctx, func(tx Tx) (err error) {
		out, err = tx.Overbookings(ctx, status, tripID)
		return err
	})
	return out, err
}

// Get returns a request by ID.
func (s *OverbookingService) Get(ctx context.Context, requestID uint64) (model.OverbookingRequest, error) {
	var r model.OverbookingRequest
	err := s.read(ctx, func(tx Tx) (err error) {
		r, err = tx.Overbooking(ctx, requestID)
		return err
	})
	return r, err
}

// OccupancyRate reports the trip's current seat-segment occupancy.
func (s *OverbookingService) OccupancyRate(ctx context.Context, tripID uint64) (float64, error) {
	var rate float64
	err := s.read(ctx, func(tx Tx) error {
		trip, err := tx.Trip(ctx, tripID)
		if err != nil {
			return err
		}
		rate, err = s.occupancy(ctx, tx, trip)
		return err
	})
	return rate, err
}

func (s *OverbookingService) occupancy(ctx context.Context, tx Tx, trip model.Trip) (float64, error) {
	bus, seats, err := s.topo.tripSeats(ctx, trip)
	if err != nil {
		return 0, err
	}
	span, err := s.topo.routeSpan(ctx, trip.RouteID)
	if err != nil {
		return 0, err
	}
	tickets, err := tx.LiveTickets(ctx, trip.ID, "")
	if err != nil {
		return 0, err
	}
	capacity := bus.Capacity
	if capacity <= 0 {
		capacity = len(seats)
	}
	return occupancyRate(capacity, span, tickets), nil
}

// checkPolicy applies the overbooking policy: the trip must be bookable,
// departure within the configured window (and after the request cutoff),
// occupancy at or above the threshold and the per-trip limit not reached.
// exclude is a ticket that must not count against the limit.
func (s *OverbookingService) checkPolicy(ctx context.Context, tx Tx, trip model.Trip, exclude uint64) error {
	if !trip.Status.Bookable() {
		return fmt.Errorf("%w: trip %d is %s", domain.ErrTripNotBookable, trip.ID, trip.Status)
	}
	until := trip.DepartureAt.Sub(s.Clock.Now())
	if until > s.Policy.OverbookingWindow {
		return fmt.Errorf("%w: departure in %s is outside the %s window", domain.ErrOverbookingNotAllowed, until.Round(time.Second), s.Policy.OverbookingWindow)
	}
	if until <= s.Policy.OverbookingCutoff {
		return fmt.Errorf("%w: departure in %s is past the request cutoff", domain.ErrOverbookingNotAllowed, until.Round(time.Second))
	}
	rate, err := s.occupancy(ctx, tx, trip)
	if err != nil {
		return err
	}
	if rate < s.Policy.OverbookingThreshold {
		return fmt.Errorf("%w: occupancy %.2f below %.2f", domain.ErrOverbookingNotAllowed, rate, s.Policy.OverbookingThreshold)
	}
	bus, _, err := s.topo.tripSeats(ctx, trip)
	if err != nil {
		return err
	}
	limit := int(math.Floor(float64(bus.Capacity) * s.Policy.OverbookingMaxPercentage / 100))
	tickets, err := tx.LiveTickets(ctx, trip.ID, "")
	if err != nil {
		return err
	}
	pending, err := tx.Overbookings(ctx, model.OverbookingRequestPending, trip.ID)
	if err != nil {
		return err
	}
	counted := map[uint64]bool{}
	for _, t := range tickets {
		if t.Overbooking != model.OverbookingNone && t.ID != exclude {
			counted[t.ID] = true
		}
	}
	for _, r := range pending {
		if r.TicketID != exclude {
			counted[r.TicketID] = true
		}
	}
	if len(counted) >= limit {
		return fmt.Errorf("%w: trip %d reached its overbooking limit of %d", domain.ErrOverbookingNotAllowed, trip.ID, limit)
	}
	return nil
}

func (s *OverbookingService) insertRequest(ctx context.Context, tx Tx, rc domain.RequestContext, trip model.Trip, ticketID uint64, reason string, events *[]queue.Event) (model.OverbookingRequest, error) {
	now := s.Clock.Now()
	r := model.OverbookingRequest{
		TripID:      trip.ID,
		TicketID:    ticketID,
		Status:      model.OverbookingRequestPending,
		Reason:      reason,
		RequestedBy: rc.UserID,
		RequestedAt: now,
		ExpiresAt:   trip.DepartureAt.Add(-s.Policy.OverbookingCutoff),
	}
	if err := tx.InsertOverbooking(ctx, &r); err != nil {
		return model.OverbookingRequest{}, err
	}
	ev := s.event(queue.OverbookingRequested, rc.UserID)
	fillRequest(&ev, r)
	ev.Detail = reason
	*events = append(*events, ev)
	return r, nil
}

// resolve runs a PENDING -> terminal transition. If the request has passed
// its expiry it is expired (and its ticket cancelled) instead, that change
// is committed and the call reports an invalid transition.
func (s *OverbookingService) resolve(ctx context.Context, rc domain.RequestContext, requestID uint64, apply func(tx Tx, r *model.OverbookingRequest, t *model.Ticket, events *[]queue.Event) error) (model.OverbookingRequest, error) {
	var cur model.OverbookingRequest
	if err := s.read(ctx, func(tx Tx) (err error) {
		cur, err = tx.Overbooking(ctx, requestID)
		return err
	}); err != nil {
		return model.OverbookingRequest{}, err
	}
	var out model.OverbookingRequest
	expiredInstead := false
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		expiredInstead = false
		if _, err := tx.LockTrip(ctx, cur.TripID, true); err != nil {
			return err
		}
		r, err := tx.Overbooking(ctx, requestID)
		if err != nil {
			return err
		}
		if r.Status != model.OverbookingRequestPending {
			return fmt.Errorf("%w: overbooking request %d is %s", domain.ErrInvalidStateTransition, r.ID, r.Status)
		}
		t, err := tx.Ticket(ctx, r.TicketID)
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		ticketFrom := t.Status
		if !now.Before(r.ExpiresAt) {
			expiredInstead = true
			s.expireRequest(&r, &t, events)
		} else if err := apply(tx, &r, &t, events); err != nil {
			return err
		}
		actor := rc.UserID
		r.ResolvedBy = &actor
		r.ResolvedAt = &now
		if err := s.writeResolution(ctx, tx, r, t, ticketFrom); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return model.OverbookingRequest{}, err
	}
	if expiredInstead {
		return out, fmt.Errorf("%w: overbooking request %d expired at %s", domain.ErrInvalidStateTransition, out.ID, out.ExpiresAt.Format("15:04:05"))
	}
	s.Log.Info("OVERBOOKING", fmt.Sprintf("request %d %s", out.ID, out.Status))
	return out, nil
}

func (s *OverbookingService) expireOne(ctx context.Context, requestID uint64) (bool, error) {
	var cur model.OverbookingRequest
	if err := s.read(ctx, func(tx Tx) (err error) {
		cur, err = tx.Overbooking(ctx, requestID)
		return err
	}); err != nil {
		return false, err
	}
	expired := false
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		expired = false
		if _, err := tx.LockTrip(ctx, cur.TripID, true); err != nil {
			return err
		}
		r, err := tx.Overbooking(ctx, requestID)
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		if r.Status != model.OverbookingRequestPending || now.Before(r.ExpiresAt) {
			return nil
		}
		t, err := tx.Ticket(ctx, r.TicketID)
		if err != nil {
			return err
		}
		ticketFrom := t.Status
		s.expireRequest(&r, &t, events)
		r.ResolvedAt = &now
		if err := s.writeResolution(ctx, tx, r, t, ticketFrom); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

func (s *OverbookingService) expireRequest(r *model.OverbookingRequest, t *model.Ticket, events *[]queue.Event) {
	r.Status = model.OverbookingRequestExpired
	ev := s.event(queue.OverbookingExpired, 0)
	fillRequest(&ev, *r)
	*events = append(*events, ev)
	s.cancelForRequest(t, "overbooking request expired", 0, events)
}

// cancelForRequest cancels the ticket behind a rejected or expired request
// if it is still live.
func (s *OverbookingService) cancelForRequest(t *model.Ticket, reason string, actor uint64, events *[]queue.Event) {
	if !t.Status.Live() {
		return
	}
	t.RefundCents = 0
	if t.Status == model.TicketSold {
		t.RefundCents = t.PriceCents
	}
	t.Status = model.TicketCancelled
	t.CancelReason = reason
	*events = append(*events, s.ticketEvent(queue.TicketCancelled, actor, *t))
}

func (s *OverbookingService) writeResolution(ctx context.Context, tx Tx, r model.OverbookingRequest, t model.Ticket, ticketFrom model.TicketStatus) error {
	ok, err := tx.UpdateOverbooking(ctx, r, model.OverbookingRequestPending)
	if err != nil {
		return err
	}
	if !ok {
		return lost("overbooking request", r.ID)
	}
	t.UpdatedAt = s.Clock.Now()
	ok, err = tx.UpdateTicket(ctx, t, ticketFrom)
	if err != nil {
		return err
	}
	if !ok {
		return lost("ticket", t.ID)
	}
	return nil
}

func fillRequest(ev *queue.Event, r model.OverbookingRequest) {
	ev.TripID = r.TripID
	ev.TicketID = r.TicketID
	ev.RequestID = r.ID
	ev.Status = string(r.Status)
}
