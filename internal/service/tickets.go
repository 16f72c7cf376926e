package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/queue"
	"github.com/iliyamo/segment-reservation/internal/utils"
)

// TicketRequest converts a hold into a ticket.
type TicketRequest struct {
	HoldID        uint64              `json:"hold_id" validate:"required"`
	PassengerID   uint64              `json:"passenger_id" validate:"required"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required,oneof=CASH TRANSFER QR CARD"`
}

// TicketService drives the ticket state machine:
//
//	PENDING_PAYMENT -> SOLD | CANCELLED
//	SOLD            -> USED | NO_SHOW | CANCELLED
type TicketService struct {
	*base
	topo *TopologyService
}

// CreateTicket converts an ACTIVE, unexpired hold into a ticket. The hold
// becomes CONVERTED in the same unit of work. Settled payment methods issue
// the ticket SOLD, the rest PENDING_PAYMENT.
func (s *TicketService) CreateTicket(ctx context.Context, rc domain.RequestContext, req TicketRequest) (model.Ticket, error) {
	return s.issue(ctx, rc, req, 0)
}

// issue is CreateTicket with discountPercent taken off the fare.
func (s *TicketService) issue(ctx context.Context, rc domain.RequestContext, req TicketRequest, discountPercent int) (model.Ticket, error) {
	if !req.PaymentMethod.Valid() {
		return model.Ticket{}, fmt.Errorf("%w: payment method %q", domain.ErrInvalidRequest, req.PaymentMethod)
	}
	var hold model.SeatHold
	var trip model.Trip
	if err := s.read(ctx, func(tx Tx) (err error) {
		if hold, err = tx.Hold(ctx, req.HoldID); err != nil {
			return err
		}
		trip, err = tx.Trip(ctx, hold.TripID)
		return err
	}); err != nil {
		return model.Ticket{}, err
	}
	price, err := s.topo.fare(ctx, trip.RouteID, hold.Segment())
	if err != nil {
		return model.Ticket{}, err
	}
	price = discounted(price, discountPercent)
	code, err := utils.NewTicketCode()
	if err != nil {
		return model.Ticket{}, err
	}

	var ticket model.Ticket
	err = s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		trip, err := tx.LockTrip(ctx, hold.TripID, false)
		if err != nil {
			return err
		}
		if !trip.SalesOpen() {
			return fmt.Errorf("%w: trip %d is %s", domain.ErrTripNotBookable, trip.ID, trip.Status)
		}
		if err := tx.LockSeat(ctx, hold.TripID, hold.SeatNumber); err != nil {
			return err
		}
		h, err := tx.Hold(ctx, req.HoldID)
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		switch {
		case h.Status == model.HoldExpired:
			return fmt.Errorf("%w: hold %d", domain.ErrHoldExpired, h.ID)
		case h.Status != model.HoldActive:
			return fmt.Errorf("%w: hold %d is %s", domain.ErrHoldNotFound, h.ID, h.Status)
		case !now.Before(h.ExpiresAt):
			return fmt.Errorf("%w: hold %d expired at %s", domain.ErrHoldExpired, h.ID, h.ExpiresAt.Format(time.RFC3339))
		}
		if err := s.checkSeatFree(ctx, tx, h.TripID, h.SeatNumber, h.Segment(), h.ID, events); err != nil {
			return err
		}
		ok, err := tx.SetHoldStatus(ctx, h.ID, model.HoldActive, model.HoldConverted, now)
		if err != nil {
			return err
		}
		if !ok {
			return lost("hold", h.ID)
		}
		status := model.TicketPendingPayment
		if req.PaymentMethod.Settled() {
			status = model.TicketSold
		}
		holdID := h.ID
		ticket = model.Ticket{
			TripID:        h.TripID,
			SeatNumber:    h.SeatNumber,
			FromOrdinal:   h.FromOrdinal,
			ToOrdinal:     h.ToOrdinal,
			PassengerID:   req.PassengerID,
			HoldID:        &holdID,
			PriceCents:    price,
			PaymentMethod: req.PaymentMethod,
			Status:        status,
			QRCode:        code,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertTicket(ctx, &ticket); err != nil {
			return err
		}
		*events = append(*events, s.ticketEvent(queue.TicketCreated, rc.UserID, ticket))
		if status == model.TicketSold {
			*events = append(*events, s.ticketEvent(queue.TicketSold, rc.UserID, ticket))
		}
		return nil
	})
	if err != nil {
		return model.Ticket{}, err
	}
	s.Log.LogTicket("CREATE", ticket.ID, fmt.Sprintf("hold=%d status=%s price=%d", req.HoldID, ticket.Status, ticket.PriceCents))
	return ticket, nil
}

// ConfirmPayment moves a PENDING_PAYMENT ticket to SOLD. Tickets waiting on
// an overbooking decision cannot be confirmed until approved.
func (s *TicketService) ConfirmPayment(ctx context.Context, rc domain.RequestContext, ticketID uint64, method model.PaymentMethod) (model.Ticket, error) {
	if method != "" && !method.Valid() {
		return model.Ticket{}, fmt.Errorf("%w: payment method %q", domain.ErrInvalidRequest, method)
	}
	return s.mutate(ctx, ticketID, func(tx Tx, t *model.Ticket, _ model.Trip, events *[]queue.Event) error {
		if t.Status != model.TicketPendingPayment {
			return fmt.Errorf("%w: ticket %d is %s", domain.ErrInvalidStateTransition, t.ID, t.Status)
		}
		if t.Overbooking == model.OverbookingPending {
			return fmt.Errorf("%w: ticket %d awaits overbooking approval", domain.ErrInvalidStateTransition, t.ID)
		}
		if r, err := tx.OverbookingByTicket(ctx, t.ID); err == nil && r.Status == model.OverbookingRequestPending {
			return fmt.Errorf("%w: ticket %d has pending overbooking request %d", domain.ErrInvalidStateTransition, t.ID, r.ID)
		} else if err != nil && !errors.Is(err, domain.ErrOverbookingNotFound) {
			return err
		}
		t.Status = model.TicketSold
		if method != "" {
			t.PaymentMethod = method
		}
		*events = append(*events, s.ticketEvent(queue.TicketSold, rc.UserID, *t))
		return nil
	})
}

// Cancel moves a PENDING_PAYMENT or SOLD ticket to CANCELLED and records the
// refund. The segment is free for new holds as soon as this commits.
func (s *TicketService) Cancel(ctx context.Context, rc domain.RequestContext, ticketID uint64, reason string) (model.Ticket, error) {
	return s.mutate(ctx, ticketID, func(tx Tx, t *model.Ticket, trip model.Trip, events *[]queue.Event) error {
		if !t.Status.Live() {
			return fmt.Errorf("%w: ticket %d is %s", domain.ErrInvalidStateTransition, t.ID, t.Status)
		}
		t.RefundCents = s.refundFor(*t, trip.DepartureAt.Sub(s.Clock.Now()))
		t.Status = model.TicketCancelled
		t.CancelReason = reason
		if err := s.closeOverbooking(ctx, tx, t.ID, rc.UserID, "ticket cancelled"); err != nil {
			return err
		}
		ev := s.ticketEvent(queue.TicketCancelled, rc.UserID, *t)
		ev.AmountCents = t.RefundCents
		ev.Detail = reason
		*events = append(*events, ev, seatAvailable(s.event(queue.SeatAvailable, rc.UserID), t.TripID, t.SeatNumber, t.Segment()))
		return nil
	})
}

// MarkUsed records that the passenger boarded. Only SOLD tickets of a
// BOARDING trip qualify.
func (s *TicketService) MarkUsed(ctx context.Context, rc domain.RequestContext, ticketID uint64) (model.Ticket, error) {
	return s.mutate(ctx, ticketID, func(_ Tx, t *model.Ticket, trip model.Trip, events *[]queue.Event) error {
		if err := boardingGuard(*t, trip); err != nil {
			return err
		}
		t.Status = model.TicketUsed
		*events = append(*events, s.ticketEvent(queue.TicketUsed, rc.UserID, *t))
		return nil
	})
}

// MarkNoShow records that the passenger did not board and charges the
// no-show fee.
func (s *TicketService) MarkNoShow(ctx context.Context, rc domain.RequestContext, ticketID uint64) (model.Ticket, error) {
	return s.mutate(ctx, ticketID, func(_ Tx, t *model.Ticket, trip model.Trip, events *[]queue.Event) error {
		if err := boardingGuard(*t, trip); err != nil {
			return err
		}
		t.Status = model.TicketNoShow
		t.NoShowFeeCents = s.noShowFee(t.PriceCents)
		ev := s.ticketEvent(queue.TicketNoShow, rc.UserID, *t)
		ev.AmountCents = t.NoShowFeeCents
		*events = append(*events, ev, seatAvailable(s.event(queue.SeatAvailable, rc.UserID), t.TripID, t.SeatNumber, t.Segment()))
		return nil
	})
}

// SweepNoShows marks every SOLD ticket of a BOARDING trip as NO_SHOW once
// its departure is within the no-show window. Each ticket goes through
// MarkNoShow, so the fee and the freed segment match a manual mark.
func (s *TicketService) SweepNoShows(ctx context.Context) (int, error) {
	now := s.Clock.Now()
	var due []model.Ticket
	if err := s.read(ctx, func(tx Tx) error {
		trips, err := tx.TripsDue(ctx, model.TripBoarding, now.Add(s.Policy.NoShowWindow))
		if err != nil {
			return err
		}
		for _, trip := range trips {
			tickets, err := tx.LiveTickets(ctx, trip.ID, "")
			if err != nil {
				return err
			}
			for _, t := range tickets {
				if t.Status == model.TicketSold {
					due = append(due, t)
				}
			}
		}
		return nil
	}); err != nil {
		return 0, err
	}

	system := domain.RequestContext{Role: domain.RoleAdmin}
	marked := 0
	for _, t := range due {
		_, err := s.MarkNoShow(ctx, system, t.ID)
		switch {
		case err == nil:
			marked++
		case errors.Is(err, domain.ErrInvalidStateTransition):
			// the ticket or its trip moved on since the read
		default:
			return marked, err
		}
	}
	if marked > 0 {
		s.Log.Info("SWEEP", fmt.Sprintf("marked %d tickets no-show", marked))
	}
	return marked, nil
}

// Get returns a ticket by ID.
func (s *TicketService) Get(ctx context.Context, ticketID uint64) (model.Ticket, error) {
	var t model.Ticket
	err := s.read(ctx, func(tx Tx) (err error) {
		t, err = tx.Ticket(ctx, ticketID)
		return err
	})
	return t, err
}

// ByQR returns the ticket printed with code.
func (s *TicketService) ByQR(ctx context.Context, code string) (model.Ticket, error) {
	var t model.Ticket
	err := s.read(ctx, func(tx Tx) (err error) {
		t, err = tx.TicketByQR(ctx, code)
		return err
	})
	return t, err
}

// ListByTrip returns every ticket of a trip.
func (s *TicketService) ListByTrip(ctx context.Context, tripID uint64) ([]model.Ticket, error) {
	var out []model.Ticket
	err := s.read(ctx, func(tx Tx) (err error) {
		if _, err = tx.Trip(ctx, tripID); err != nil {
			return err
		}
		out, err = tx.TicketsByTrip(ctx, tripID)
		return err
	})
	return out, err
}

// mutate loads a ticket under its trip and seat locks, lets apply change
// it, and writes it back with a status compare-and-swap.
func (s *TicketService) mutate(ctx context.Context, ticketID uint64, apply func(tx Tx, t *model.Ticket, trip model.Trip, events *[]queue.Event) error) (model.Ticket, error) {
	var cur model.Ticket
	if err := s.read(ctx, func(tx Tx) (err error) {
		cur, err = tx.Ticket(ctx, ticketID)
		return err
	}); err != nil {
		return model.Ticket{}, err
	}
	var out model.Ticket
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		trip, err := tx.LockTrip(ctx, cur.TripID, false)
		if err != nil {
			return err
		}
		if err := tx.LockSeat(ctx, cur.TripID, cur.SeatNumber); err != nil {
			return err
		}
		t, err := tx.Ticket(ctx, ticketID)
		if err != nil {
			return err
		}
		from := t.Status
		if err := apply(tx, &t, trip, events); err != nil {
			return err
		}
		t.UpdatedAt = s.Clock.Now()
		ok, err := tx.UpdateTicket(ctx, t, from)
		if err != nil {
			return err
		}
		if !ok {
			return lost("ticket", t.ID)
		}
		out = t
		return nil
	})
	if err != nil {
		return model.Ticket{}, err
	}
	s.Log.LogTicket(string(out.Status), out.ID, fmt.Sprintf("trip=%d seat=%s", out.TripID, out.SeatNumber))
	return out, nil
}

// closeOverbooking rejects a still-pending overbooking request of a ticket
// that is being cancelled, so no request outlives its ticket.
func (s *base) closeOverbooking(ctx context.Context, tx Tx, ticketID, actor uint64, note string) error {
	r, err := tx.OverbookingByTicket(ctx, ticketID)
	if errors.Is(err, domain.ErrOverbookingNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if r.Status != model.OverbookingRequestPending {
		return nil
	}
	now := s.Clock.Now()
	r.Status = model.OverbookingRequestRejected
	r.Notes = note
	r.ResolvedBy = &actor
	r.ResolvedAt = &now
	ok, err := tx.UpdateOverbooking(ctx, r, model.OverbookingRequestPending)
	if err != nil {
		return err
	}
	if !ok {
		return lost("overbooking request", r.ID)
	}
	return nil
}

// boardingGuard admits SOLD tickets of a BOARDING trip. Anything else is a
// ticket transition the trip's state does not allow.
func boardingGuard(t model.Ticket, trip model.Trip) error {
	if trip.Status != model.TripBoarding {
		return fmt.Errorf("%w: ticket %d cannot board, trip %d is %s", domain.ErrInvalidStateTransition, t.ID, trip.ID, trip.Status)
	}
	if t.Status != model.TicketSold {
		return fmt.Errorf("%w: ticket %d is %s", domain.ErrInvalidStateTransition, t.ID, t.Status)
	}
	return nil
}

// refundFor applies the cancellation policy. Unpaid tickets refund nothing.
func (s *base) refundFor(t model.Ticket, untilDeparture time.Duration) uint32 {
	if t.Status != model.TicketSold {
		return 0
	}
	switch {
	case untilDeparture >= s.Policy.RefundFullBefore:
		return t.PriceCents
	case untilDeparture >= s.Policy.RefundPartialBefore:
		return uint32(uint64(t.PriceCents) * uint64(s.Policy.RefundPartialPercent) / 100)
	default:
		return 0
	}
}

func discounted(price uint32, percent int) uint32 {
	if percent <= 0 {
		return price
	}
	if percent >= 100 {
		return 0
	}
	return price - uint32(uint64(price)*uint64(percent)/100)
}

// noShowFee is the larger of the fixed fee and the percentage of price.
func (s *base) noShowFee(price uint32) uint32 {
	pct := uint32(uint64(price) * uint64(s.Policy.NoShowFeePercent) / 100)
	if pct > s.Policy.NoShowFeeCents {
		return pct
	}
	return s.Policy.NoShowFeeCents
}

func (s *base) ticketEvent(typ string, actor uint64, t model.Ticket) queue.Event {
	ev := s.event(typ, actor)
	ev.TripID = t.TripID
	ev.SeatNumber = t.SeatNumber
	ev.FromOrdinal = t.FromOrdinal
	ev.ToOrdinal = t.ToOrdinal
	ev.TicketID = t.ID
	ev.Status = string(t.Status)
	if typ == queue.TicketSold || typ == queue.TicketCreated {
		ev.AmountCents = t.PriceCents
	}
	return ev
}
