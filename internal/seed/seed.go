// Package seed loads a demo network: one route, one bus and a few upcoming
// trips. It writes through the same topology calls for MySQL and memory.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/repository/memory"
)

// Writer creates topology rows. repository.TopologyRepo implements it.
type Writer interface {
	CreateRoute(ctx context.Context, name string, stopNames []string) (model.Route, error)
	CreateBus(ctx context.Context, plate string, seatNumbers []string) (model.Bus, error)
	SetFare(ctx context.Context, routeID uint64, from, to int, cents uint32) error
	CreateTrip(ctx context.Context, routeID uint64, busID *uint64, departureAt time.Time) (model.Trip, error)
}

// Plan describes what Apply creates.
type Plan struct {
	Route       string
	Stops       []string
	Plate       string
	Seats       int
	HopCents    uint32 // price of one stop-to-stop hop; longer segments add up
	Trips       int    // one per day starting tomorrow
	DepartureAt time.Duration
}

// Demo is the default plan.
var Demo = Plan{
	Route:       "Bogota - Tunja",
	Stops:       []string{"Bogota", "Chia", "Zipaquira", "Ubate", "Tunja"},
	Plate:       "TRN-401",
	Seats:       40,
	HopCents:    12000,
	Trips:       3,
	DepartureAt: 8 * time.Hour,
}

// Result lists what was created.
type Result struct {
	Route model.Route
	Bus   model.Bus
	Fares int
	Trips []model.Trip
}

// Apply creates p through w. Trips depart at p.DepartureAt past midnight UTC
// on the days after now.
func Apply(ctx context.Context, w Writer, p Plan, now time.Time) (Result, error) {
	var res Result
	route, err := w.CreateRoute(ctx, p.Route, p.Stops)
	if err != nil {
		return res, fmt.Errorf("route: %w", err)
	}
	res.Route = route

	bus, err := w.CreateBus(ctx, p.Plate, memory.SeatNumbers(p.Seats))
	if err != nil {
		return res, fmt.Errorf("bus: %w", err)
	}
	res.Bus = bus

	for from := 0; from < len(p.Stops)-1; from++ {
		for to := from + 1; to < len(p.Stops); to++ {
			if err := w.SetFare(ctx, route.ID, from, to, p.HopCents*uint32(to-from)); err != nil {
				return res, fmt.Errorf("fare [%d,%d): %w", from, to, err)
			}
			res.Fares++
		}
	}

	day := now.UTC().Truncate(24 * time.Hour)
	for i := 1; i <= p.Trips; i++ {
		dep := day.AddDate(0, 0, i).Add(p.DepartureAt)
		trip, err := w.CreateTrip(ctx, route.ID, &bus.ID, dep)
		if err != nil {
			return res, fmt.Errorf("trip %s: %w", dep.Format(time.RFC3339), err)
		}
		res.Trips = append(res.Trips, trip)
	}
	return res, nil
}

// Memory adapts the in-memory store to Writer.
func Memory(s *memory.Store) Writer { return memoryWriter{s} }

type memoryWriter struct{ s *memory.Store }

func (m memoryWriter) CreateRoute(_ context.Context, name string, stopNames []string) (model.Route, error) {
	r, _ := m.s.AddRoute(name, stopNames...)
	return r, nil
}

func (m memoryWriter) CreateBus(_ context.Context, plate string, seatNumbers []string) (model.Bus, error) {
	return m.s.AddBus(plate, seatNumbers...), nil
}

func (m memoryWriter) SetFare(_ context.Context, routeID uint64, from, to int, cents uint32) error {
	m.s.AddFare(routeID, from, to, cents)
	return nil
}

func (m memoryWriter) CreateTrip(_ context.Context, routeID uint64, busID *uint64, departureAt time.Time) (model.Trip, error) {
	return m.s.AddTrip(model.Trip{RouteID: routeID, BusID: busID, DepartureAt: departureAt.UTC()}), nil
}
