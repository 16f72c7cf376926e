package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

// QuickSaleRequest sells one seat on the spot to a walk-up passenger.
type QuickSaleRequest struct {
	TripID        uint64
	SeatNumber    string
	From, To      int
	PassengerID   uint64
	PaymentMethod model.PaymentMethod // CARD when empty
	Discount      bool
}

// QuickSeat is a seat free on the queried segment. NoShow marks seats
// released by a passenger who did not board.
type QuickSeat struct {
	SeatNumber string `json:"seat_number"`
	NoShow     bool   `json:"no_show"`
}

// QuickSaleOffer lists what is left to sell on a trip about to leave.
type QuickSaleOffer struct {
	TripID          uint64      `json:"trip_id"`
	DepartureAt     time.Time   `json:"departure_at"`
	MinutesLeft     int         `json:"minutes_to_departure"`
	Open            bool        `json:"open"`
	FromOrdinal     int         `json:"from_ordinal"`
	ToOrdinal       int         `json:"to_ordinal"`
	PriceCents      uint32      `json:"price_cents"`
	DiscountedCents uint32      `json:"discounted_price_cents"`
	Seats           []QuickSeat `json:"seats"`
}

// QuickSaleService lets counter staff sell the seats left free in the last
// minutes before departure, including segments released by no-shows. A
// sale is an ordinary hold converted straight into a ticket, so it takes
// the same locks and overlap checks as any other booking.
type QuickSaleService struct {
	*base
	topo    *TopologyService
	holds   *HoldService
	tickets *TicketService
}

// Sell holds the seat and converts the hold in one call. If the ticket
// cannot be issued the hold is released again.
func (s *QuickSaleService) Sell(ctx context.Context, rc domain.RequestContext, req QuickSaleRequest) (model.Ticket, error) {
	if req.PassengerID == 0 {
		return model.Ticket{}, fmt.Errorf("%w: passenger_id is required", domain.ErrInvalidRequest)
	}
	method := req.PaymentMethod
	if method == "" {
		method = model.PaymentCard
	}
	var trip model.Trip
	if err := s.read(ctx, func(tx Tx) (err error) {
		trip, err = tx.Trip(ctx, req.TripID)
		return err
	}); err != nil {
		return model.Ticket{}, err
	}
	if err := s.inWindow(trip, s.Clock.Now()); err != nil {
		return model.Ticket{}, err
	}

	hold, err := s.holds.CreateHold(ctx, rc, HoldRequest{TripID: req.TripID, SeatNumber: req.SeatNumber, From: req.From, To: req.To})
	if err != nil {
		return model.Ticket{}, err
	}
	discount := 0
	if req.Discount {
		discount = s.Policy.QuickSaleDiscountPercent
	}
	tk, err := s.tickets.issue(ctx, rc, TicketRequest{HoldID: hold.ID, PassengerID: req.PassengerID, PaymentMethod: method}, discount)
	if err != nil {
		if _, rerr := s.holds.Release(ctx, rc, hold.ID); rerr != nil {
			s.Log.Warn("QUICK_SALE", fmt.Sprintf("release hold %d: %v", hold.ID, rerr))
		}
		return model.Ticket{}, err
	}
	s.Log.LogTicket("QUICK_SALE", tk.ID, fmt.Sprintf("trip=%d seat=%s price=%d", tk.TripID, tk.SeatNumber, tk.PriceCents))
	return tk, nil
}

// Seats lists the seats free on [from, to) of the trip and whether the
// quick-sale window is open now.
func (s *QuickSaleService) Seats(ctx context.Context, tripID uint64, from, to int) (QuickSaleOffer, error) {
	seg := model.Segment{From: from, To: to}
	if !seg.Valid() {
		return QuickSaleOffer{}, fmt.Errorf("%w: [%d,%d)", domain.ErrInvalidSegment, from, to)
	}
	now := s.Clock.Now()
	var offer QuickSaleOffer
	var trip model.Trip
	err := s.read(ctx, func(tx Tx) (err error) {
		if trip, err = tx.Trip(ctx, tripID); err != nil {
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
		all, err := tx.TicketsByTrip(ctx, tripID)
		if err != nil {
			return err
		}
		var live []model.Ticket
		noShow := map[string]bool{}
		for _, t := range all {
			switch {
			case t.Status.Live():
				live = append(live, t)
			case t.Status == model.TicketNoShow && t.Segment().Overlaps(seg):
				noShow[t.SeatNumber] = true
			}
		}
		offer.Seats = []QuickSeat{}
		for _, st := range seatStatuses(seats, holds, live, seg, now) {
			if st.Status == SeatFree {
				offer.Seats = append(offer.Seats, QuickSeat{SeatNumber: st.SeatNumber, NoShow: noShow[st.SeatNumber]})
			}
		}
		return nil
	})
	if err != nil {
		return QuickSaleOffer{}, err
	}
	price, err := s.topo.fare(ctx, trip.RouteID, seg)
	if err != nil {
		return QuickSaleOffer{}, err
	}
	offer.TripID = trip.ID
	offer.DepartureAt = trip.DepartureAt
	offer.MinutesLeft = int(trip.DepartureAt.Sub(now) / time.Minute)
	offer.Open = s.inWindow(trip, now) == nil
	offer.FromOrdinal = seg.From
	offer.ToOrdinal = seg.To
	offer.PriceCents = price
	offer.DiscountedCents = discounted(price, s.Policy.QuickSaleDiscountPercent)
	return offer, nil
}

// inWindow admits trips still on sale that leave within the quick-sale
// window and have not left yet.
func (s *QuickSaleService) inWindow(trip model.Trip, now time.Time) error {
	if !trip.SalesOpen() {
		return fmt.Errorf("%w: trip %d is %s and closed to sales", domain.ErrTripNotBookable, trip.ID, trip.Status)
	}
	left := trip.DepartureAt.Sub(now)
	if left < 0 {
		return fmt.Errorf("%w: trip %d left at %s", domain.ErrTripNotBookable, trip.ID, trip.DepartureAt.Format(time.RFC3339))
	}
	if left > s.Policy.QuickSaleWindow {
		return fmt.Errorf("%w: quick sale for trip %d opens %s before departure", domain.ErrTripNotBookable, trip.ID, s.Policy.QuickSaleWindow)
	}
	return nil
}
