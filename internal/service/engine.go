package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/segment-reservation/internal/config"
	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/logger"
	"github.com/iliyamo/segment-reservation/internal/queue"
)

// Notifier receives events after their unit of work has committed. It must
// return immediately.
type Notifier interface {
	Publish(ev queue.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(queue.Event) {}

// Deps are shared by every service.
type Deps struct {
	Store    Store
	Clock    clockwork.Clock
	Policy   config.ReservationPolicy
	Notifier Notifier
	Log      *logger.Logger
	OtpCost  int // bcrypt cost for parcel OTPs; 0 means bcrypt.DefaultCost
}

func (d Deps) withDefaults() Deps {
	if d.Policy == (config.ReservationPolicy{}) {
		d.Policy = config.DefaultReservationPolicy()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	return d
}

// Engine wires the components together.
type Engine struct {
	Topology     *TopologyService
	Availability *AvailabilityService
	Holds        *HoldService
	Tickets      *TicketService
	Trips        *TripService
	Overbooking  *OverbookingService
	Parcels      *ParcelService
	QuickSale    *QuickSaleService
	Sweeper      *Sweeper
}

// New builds an Engine over d.Store.
func New(d Deps) *Engine {
	d = d.withDefaults()
	b := &base{Deps: d}
	topo := &TopologyService{base: b}
	e := &Engine{
		Topology:     topo,
		Availability: &AvailabilityService{base: b, topo: topo},
		Holds:        &HoldService{base: b, topo: topo},
		Tickets:      &TicketService{base: b, topo: topo},
		Trips:        &TripService{base: b},
		Overbooking:  &OverbookingService{base: b, topo: topo},
		Parcels:      &ParcelService{base: b},
	}
	e.QuickSale = &QuickSaleService{base: b, topo: topo, holds: e.Holds, tickets: e.Tickets}
	e.Sweeper = &Sweeper{base: b, holds: e.Holds, overbooking: e.Overbooking, trips: e.Trips, tickets: e.Tickets}
	return e
}

// base holds what every component needs.
type base struct {
	Deps
}

// atomic runs fn in a unit of work and retries it when it loses a race.
// events is reset before every attempt and published only after a
// successful commit.
func (b *base) atomic(ctx context.Context, fn func(tx Tx, events *[]queue.Event) error) error {
	var events []queue.Event
	var err error
	for attempt := 0; attempt <= b.Policy.MaxConflictRetries; attempt++ {
		events = events[:0]
		err = b.Store.Atomic(ctx, func(tx Tx) error { return fn(tx, &events) })
		if !errors.Is(err, domain.ErrWriteConflict) {
			break
		}
		b.Log.Debug("RETRY", fmt.Sprintf("attempt %d lost a write race: %v", attempt+1, err))
	}
	if errors.Is(err, domain.ErrWriteConflict) {
		return fmt.Errorf("%w: %v", domain.ErrSegmentConflict, err)
	}
	if err != nil {
		return err
	}
	for _, ev := range events {
		b.Notifier.Publish(ev)
	}
	return nil
}

func (b *base) read(ctx context.Context, fn func(tx Tx) error) error {
	return b.Store.Read(ctx, fn)
}

func (b *base) event(typ string, actor uint64) queue.Event {
	ev := queue.NewEvent(typ, b.Clock.Now())
	ev.ActorID = actor
	return ev
}

// lost is returned from inside a unit of work when a compare-and-swap did
// not apply.
func lost(what string, id any) error {
	return fmt.Errorf("%w: %s %v changed concurrently", domain.ErrWriteConflict, what, id)
}
