package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/queue"
)

// TripService is the trip state machine:
//
//	SCHEDULED -> BOARDING -> DEPARTED -> ARRIVED
//	SCHEDULED | BOARDING -> CANCELLED
//
// closeBoarding keeps the trip BOARDING but stops seat sales. Every
// transition takes the trip lock exclusively, so it cannot interleave with
// a hold or ticket operation of the same trip.
type TripService struct {
	*base
}

type tripGuard func(model.Trip) bool

func inStatus(statuses ...model.TripStatus) tripGuard {
	return func(t model.Trip) bool {
		for _, st := range statuses {
			if t.Status == st {
				return true
			}
		}
		return false
	}
}

// Get returns a trip by ID.
func (s *TripService) Get(ctx context.Context, tripID uint64) (model.Trip, error) {
	var t model.Trip
	err := s.read(ctx, func(tx Tx) (err error) {
		t, err = tx.Trip(ctx, tripID)
		return err
	})
	return t, err
}

func (s *TripService) OpenBoarding(ctx context.Context, rc domain.RequestContext, tripID uint64) (model.Trip, error) {
	return s.transition(ctx, rc, tripID, "open-boarding", inStatus(model.TripScheduled),
		func(_ Tx, t *model.Trip, _ *[]queue.Event) error {
			t.Status = model.TripBoarding
			return nil
		})
}

// CloseBoarding stops sales on a BOARDING trip. Closing twice fails.
func (s *TripService) CloseBoarding(ctx context.Context, rc domain.RequestContext, tripID uint64) (model.Trip, error) {
	guard := func(t model.Trip) bool { return t.Status == model.TripBoarding && t.BoardingClosedAt == nil }
	return s.transition(ctx, rc, tripID, "close-boarding", guard,
		func(_ Tx, t *model.Trip, _ *[]queue.Event) error {
			now := s.Clock.Now()
			t.BoardingClosedAt = &now
			return nil
		})
}

func (s *TripService) Depart(ctx context.Context, rc domain.RequestContext, tripID uint64) (model.Trip, error) {
	return s.transition(ctx, rc, tripID, "depart", inStatus(model.TripBoarding),
		func(_ Tx, t *model.Trip, _ *[]queue.Event) error {
			t.Status = model.TripDeparted
			return nil
		})
}

func (s *TripService) Arrive(ctx context.Context, rc domain.RequestContext, tripID uint64) (model.Trip, error) {
	return s.transition(ctx, rc, tripID, "arrive", inStatus(model.TripDeparted),
		func(_ Tx, t *model.Trip, _ *[]queue.Event) error {
			t.Status = model.TripArrived
			return nil
		})
}

// Cancel cancels a SCHEDULED or BOARDING trip. In the same unit of work
// every live ticket becomes CANCELLED (paid tickets are refunded in full),
// every ACTIVE hold becomes RELEASED and pending overbooking requests are
// rejected.
func (s *TripService) Cancel(ctx context.Context, rc domain.RequestContext, tripID uint64, reason string) (model.Trip, error) {
	return s.transition(ctx, rc, tripID, "cancel", inStatus(model.TripScheduled, model.TripBoarding),
		func(tx Tx, t *model.Trip, events *[]queue.Event) error {
			now := s.Clock.Now()
			tickets, err := tx.LiveTickets(ctx, t.ID, "")
			if err != nil {
				return err
			}
			for _, tk := range tickets {
				from := tk.Status
				if from == model.TicketSold {
					tk.RefundCents = tk.PriceCents
				}
				tk.Status = model.TicketCancelled
				tk.CancelReason = "trip cancelled: " + reason
				tk.UpdatedAt = now
				ok, err := tx.UpdateTicket(ctx, tk, from)
				if err != nil {
					return err
				}
				if !ok {
					return lost("ticket", tk.ID)
				}
				if err := s.closeOverbooking(ctx, tx, tk.ID, rc.UserID, "trip cancelled"); err != nil {
					return err
				}
				ev := s.ticketEvent(queue.TicketCancelled, rc.UserID, tk)
				ev.AmountCents = tk.RefundCents
				*events = append(*events, ev)
			}
			holds, err := tx.ActiveHolds(ctx, t.ID, "")
			if err != nil {
				return err
			}
			for _, h := range holds {
				ok, err := tx.SetHoldStatus(ctx, h.ID, model.HoldActive, model.HoldReleased, now)
				if err != nil {
					return err
				}
				if !ok {
					return lost("hold", h.ID)
				}
				h.Status = model.HoldReleased
				ev := s.event(queue.HoldReleased, rc.UserID)
				fillHold(&ev, h)
				*events = append(*events, ev)
			}
			t.Status = model.TripCancelled
			ev := s.event(queue.TripCancelled, rc.UserID)
			ev.TripID = t.ID
			ev.Detail = reason
			*events = append(*events, ev)
			return nil
		})
}

// AutoAdvance opens boarding for SCHEDULED trips within the boarding lead
// of departure and departs BOARDING trips whose departure time has passed.
// It returns the number of trips moved.
func (s *TripService) AutoAdvance(ctx context.Context) (int, error) {
	now := s.Clock.Now()
	var toBoard, toDepart []model.Trip
	if err := s.read(ctx, func(tx Tx) (err error) {
		if toBoard, err = tx.TripsDue(ctx, model.TripScheduled, now.Add(s.Policy.BoardingLead)); err != nil {
			return err
		}
		toDepart, err = tx.TripsDue(ctx, model.TripBoarding, now)
		return err
	}); err != nil {
		return 0, err
	}
	system := domain.RequestContext{Role: domain.RoleAdmin}
	moved := 0
	for _, t := range toBoard {
		if _, err := s.OpenBoarding(ctx, system, t.ID); err == nil {
			moved++
		}
	}
	for _, t := range toDepart {
		if _, err := s.Depart(ctx, system, t.ID); err == nil {
			moved++
		}
	}
	return moved, nil
}

func (s *TripService) transition(ctx context.Context, rc domain.RequestContext, tripID uint64, name string, guard tripGuard, apply func(tx Tx, t *model.Trip, events *[]queue.Event) error) (model.Trip, error) {
	var out model.Trip
	err := s.atomic(ctx, func(tx Tx, events *[]queue.Event) error {
		t, err := tx.LockTrip(ctx, tripID, true)
		if err != nil {
			return err
		}
		if !guard(t) {
			return fmt.Errorf("%w: cannot %s trip %d in %s", domain.ErrInvalidStateTransition, name, t.ID, t.Status)
		}
		from := t.Status
		if err := apply(tx, &t, events); err != nil {
			return err
		}
		t.UpdatedAt = s.Clock.Now()
		ok, err := tx.UpdateTrip(ctx, t, from)
		if err != nil {
			return err
		}
		if !ok {
			return lost("trip", t.ID)
		}
		if t.Status != from {
			ev := s.event(queue.TripStatusChanged, rc.UserID)
			ev.TripID = t.ID
			ev.Status = string(t.Status)
			ev.Detail = string(from)
			*events = append(*events, ev)
		}
		out = t
		return nil
	})
	if err != nil {
		return model.Trip{}, err
	}
	s.Log.LogTrip(name, out.ID, "status="+string(out.Status))
	return out, nil
}
