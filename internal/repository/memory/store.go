// Package memory is an in-process implementation of service.Store. It backs
// the test suites and the "memory" store driver used for local runs.
//
// All mutable state sits behind one RWMutex: a unit of work takes it
// exclusively, reads take it shared. Topology is seeded up front and lives
// behind its own lock, so the engine may consult it from inside a unit of
// work. A failed unit is rolled back by replaying an undo log.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
)

var errReadOnly = errors.New("memory: write inside a read-only unit")

type fareKey struct {
	route    uint64
	from, to int
}

// Store keeps every record in maps keyed by primary key.
type Store struct {
	topoMu sync.RWMutex
	routes map[uint64]model.Route
	stops  map[uint64][]model.Stop
	buses  map[uint64]model.Bus
	seats  map[uint64][]model.Seat
	fares  map[fareKey]uint32

	mu           sync.RWMutex
	trips        map[uint64]model.Trip
	holds        map[uint64]model.SeatHold
	tickets      map[uint64]model.Ticket
	overbookings map[uint64]model.OverbookingRequest
	parcels      map[string]model.Parcel

	lastID atomic.Uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		routes:       map[uint64]model.Route{},
		stops:        map[uint64][]model.Stop{},
		buses:        map[uint64]model.Bus{},
		seats:        map[uint64][]model.Seat{},
		fares:        map[fareKey]uint32{},
		trips:        map[uint64]model.Trip{},
		holds:        map[uint64]model.SeatHold{},
		tickets:      map[uint64]model.Ticket{},
		overbookings: map[uint64]model.OverbookingRequest{},
		parcels:      map[string]model.Parcel{},
	}
}

var _ service.Store = (*Store)(nil)

func (s *Store) nextID() uint64 { return s.lastID.Add(1) }

// AddRoute stores a route with one stop per name. Ordinals start at 0.
func (s *Store) AddRoute(name string, stopNames ...string) (model.Route, []model.Stop) {
	s.topoMu.Lock()
	defer s.topoMu.Unlock()
	r := model.Route{ID: s.nextID(), Name: name}
	stops := make([]model.Stop, 0, len(stopNames))
	for i, n := range stopNames {
		stops = append(stops, model.Stop{ID: s.nextID(), RouteID: r.ID, Name: n, Ordinal: i})
	}
	s.routes[r.ID] = r
	s.stops[r.ID] = stops
	return r, append([]model.Stop(nil), stops...)
}

// AddBus stores a bus whose capacity is the number of seats given.
func (s *Store) AddBus(plate string, seatNumbers ...string) model.Bus {
	s.topoMu.Lock()
	defer s.topoMu.Unlock()
	b := model.Bus{ID: s.nextID(), Plate: plate, Capacity: len(seatNumbers)}
	seats := make([]model.Seat, 0, len(seatNumbers))
	for _, n := range seatNumbers {
		seats = append(seats, model.Seat{BusID: b.ID, SeatNumber: n})
	}
	s.buses[b.ID] = b
	s.seats[b.ID] = seats
	return b
}

// AddFare sets the price of one segment of a route.
func (s *Store) AddFare(routeID uint64, from, to int, cents uint32) {
	s.topoMu.Lock()
	defer s.topoMu.Unlock()
	s.fares[fareKey{routeID, from, to}] = cents
}

// AddTrip stores t with a fresh ID. An empty status becomes SCHEDULED.
func (s *Store) AddTrip(t model.Trip) model.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID()
	if t.Status == "" {
		t.Status = model.TripScheduled
	}
	s.trips[t.ID] = t
	return t
}

// SeatNumbers returns "1".."n".
func SeatNumbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}

func (s *Store) Route(_ context.Context, routeID uint64) (model.Route, error) {
	s.topoMu.RLock()
	defer s.topoMu.RUnlock()
	r, ok := s.routes[routeID]
	if !ok {
		return model.Route{}, fmt.Errorf("%w: %d", domain.ErrUnknownRoute, routeID)
	}
	return r, nil
}

func (s *Store) StopsOf(_ context.Context, routeID uint64) ([]model.Stop, error) {
	s.topoMu.RLock()
	defer s.topoMu.RUnlock()
	if _, ok := s.routes[routeID]; !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownRoute, routeID)
	}
	return append([]model.Stop(nil), s.stops[routeID]...), nil
}

func (s *Store) Bus(_ context.Context, busID uint64) (model.Bus, error) {
	s.topoMu.RLock()
	defer s.topoMu.RUnlock()
	b, ok := s.buses[busID]
	if !ok {
		return model.Bus{}, fmt.Errorf("%w: %d", domain.ErrUnknownBus, busID)
	}
	return b, nil
}

func (s *Store) SeatsOf(_ context.Context, busID uint64) ([]model.Seat, error) {
	s.topoMu.RLock()
	defer s.topoMu.RUnlock()
	if _, ok := s.buses[busID]; !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownBus, busID)
	}
	return append([]model.Seat(nil), s.seats[busID]...), nil
}

func (s *Store) Fare(_ context.Context, routeID uint64, from, to int) (uint32, bool, error) {
	s.topoMu.RLock()
	defer s.topoMu.RUnlock()
	c, ok := s.fares[fareKey{routeID, from, to}]
	return c, ok, nil
}

// Atomic runs fn with the store locked exclusively. When fn fails, every
// write it made is undone before the lock is released.
func (s *Store) Atomic(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &txn{s: s}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// Read runs fn under the shared lock. Writes fail.
func (s *Store) Read(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&txn{s: s, readOnly: true})
}

type txn struct {
	s        *Store
	readOnly bool
	undo     []func()
}

func (t *txn) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *txn) Trip(_ context.Context, tripID uint64) (model.Trip, error) {
	tr, ok := t.s.trips[tripID]
	if !ok {
		return model.Trip{}, fmt.Errorf("%w: %d", domain.ErrUnknownTrip, tripID)
	}
	return tr, nil
}

// LockTrip only loads the trip: the store lock already serializes units.
func (t *txn) LockTrip(ctx context.Context, tripID uint64, _ bool) (model.Trip, error) {
	return t.Trip(ctx, tripID)
}

func (t *txn) LockSeat(context.Context, uint64, string) error { return nil }

func (t *txn) UpdateTrip(_ context.Context, tr model.Trip, from model.TripStatus) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	old, ok := t.s.trips[tr.ID]
	if !ok || old.Status != from {
		return false, nil
	}
	t.s.trips[tr.ID] = tr
	t.undo = append(t.undo, func() { t.s.trips[old.ID] = old })
	return true, nil
}

func (t *txn) TripsDue(_ context.Context, status model.TripStatus, before time.Time) ([]model.Trip, error) {
	var out []model.Trip
	for _, tr := range t.s.trips {
		if tr.Status == status && !tr.DepartureAt.After(before) {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txn) Hold(_ context.Context, holdID uint64) (model.SeatHold, error) {
	h, ok := t.s.holds[holdID]
	if !ok {
		return model.SeatHold{}, fmt.Errorf("%w: %d", domain.ErrHoldNotFound, holdID)
	}
	return h, nil
}

func (t *txn) ActiveHolds(_ context.Context, tripID uint64, seatNumber string) ([]model.SeatHold, error) {
	var out []model.SeatHold
	for _, h := range t.s.holds {
		if h.TripID == tripID && h.Status == model.HoldActive && (seatNumber == "" || h.SeatNumber == seatNumber) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txn) InsertHold(_ context.Context, h *model.SeatHold) error {
	if err := t.writable(); err != nil {
		return err
	}
	h.ID = t.s.nextID()
	t.s.holds[h.ID] = *h
	id := h.ID
	t.undo = append(t.undo, func() { delete(t.s.holds, id) })
	return nil
}

func (t *txn) SetHoldStatus(_ context.Context, holdID uint64, from, to model.HoldStatus, at time.Time) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	old, ok := t.s.holds[holdID]
	if !ok || old.Status != from {
		return false, nil
	}
	h := old
	h.Status = to
	h.UpdatedAt = at
	t.s.holds[holdID] = h
	t.undo = append(t.undo, func() { t.s.holds[old.ID] = old })
	return true, nil
}

func (t *txn) ExpireHolds(ctx context.Context, now time.Time) ([]model.SeatHold, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	var due []model.SeatHold
	for _, h := range t.s.holds {
		if h.Status == model.HoldActive && !h.ExpiresAt.After(now) {
			due = append(due, h)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	out := due[:0]
	for _, h := range due {
		if ok, _ := t.SetHoldStatus(ctx, h.ID, model.HoldActive, model.HoldExpired, now); ok {
			h.Status = model.HoldExpired
			h.UpdatedAt = now
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *txn) PurgeHolds(_ context.Context, cutoff time.Time) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var n int64
	for id, h := range t.s.holds {
		if h.Status != model.HoldActive && h.UpdatedAt.Before(cutoff) {
			delete(t.s.holds, id)
			old := h
			t.undo = append(t.undo, func() { t.s.holds[old.ID] = old })
			n++
		}
	}
	return n, nil
}

func (t *txn) Ticket(_ context.Context, ticketID uint64) (model.Ticket, error) {
	tk, ok := t.s.tickets[ticketID]
	if !ok {
		return model.Ticket{}, fmt.Errorf("%w: %d", domain.ErrTicketNotFound, ticketID)
	}
	return tk, nil
}

func (t *txn) TicketByQR(_ context.Context, code string) (model.Ticket, error) {
	for _, tk := range t.s.tickets {
		if tk.QRCode == code {
			return tk, nil
		}
	}
	return model.Ticket{}, fmt.Errorf("%w: qr %s", domain.ErrTicketNotFound, code)
}

func (t *txn) LiveTickets(ctx context.Context, tripID uint64, seatNumber string) ([]model.Ticket, error) {
	all, _ := t.TicketsByTrip(ctx, tripID)
	out := all[:0]
	for _, tk := range all {
		if tk.Status.Live() && (seatNumber == "" || tk.SeatNumber == seatNumber) {
			out = append(out, tk)
		}
	}
	return out, nil
}

func (t *txn) TicketsByTrip(_ context.Context, tripID uint64) ([]model.Ticket, error) {
	var out []model.Ticket
	for _, tk := range t.s.tickets {
		if tk.TripID == tripID {
			out = append(out, tk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txn) InsertTicket(_ context.Context, tk *model.Ticket) error {
	if err := t.writable(); err != nil {
		return err
	}
	tk.ID = t.s.nextID()
	t.s.tickets[tk.ID] = *tk
	id := tk.ID
	t.undo = append(t.undo, func() { delete(t.s.tickets, id) })
	return nil
}

func (t *txn) UpdateTicket(_ context.Context, tk model.Ticket, from model.TicketStatus) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	old, ok := t.s.tickets[tk.ID]
	if !ok || old.Status != from {
		return false, nil
	}
	t.s.tickets[tk.ID] = tk
	t.undo = append(t.undo, func() { t.s.tickets[old.ID] = old })
	return true, nil
}

func (t *txn) Overbooking(_ context.Context, id uint64) (model.OverbookingRequest, error) {
	r, ok := t.s.overbookings[id]
	if !ok {
		return model.OverbookingRequest{}, fmt.Errorf("%w: %d", domain.ErrOverbookingNotFound, id)
	}
	return r, nil
}

func (t *txn) OverbookingByTicket(_ context.Context, ticketID uint64) (model.OverbookingRequest, error) {
	for _, r := range t.s.overbookings {
		if r.TicketID == ticketID {
			return r, nil
		}
	}
	return model.OverbookingRequest{}, fmt.Errorf("%w: ticket %d", domain.ErrOverbookingNotFound, ticketID)
}

func (t *txn) Overbookings(_ context.Context, status model.OverbookingStatus, tripID uint64) ([]model.OverbookingRequest, error) {
	var out []model.OverbookingRequest
	for _, r := range t.s.overbookings {
		if (status == "" || r.Status == status) && (tripID == 0 || r.TripID == tripID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txn) DueOverbookings(ctx context.Context, now time.Time) ([]model.OverbookingRequest, error) {
	pending, _ := t.Overbookings(ctx, model.OverbookingRequestPending, 0)
	out := pending[:0]
	for _, r := range pending {
		if !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *txn) InsertOverbooking(_ context.Context, r *model.OverbookingRequest) error {
	if err := t.writable(); err != nil {
		return err
	}
	r.ID = t.s.nextID()
	t.s.overbookings[r.ID] = *r
	id := r.ID
	t.undo = append(t.undo, func() { delete(t.s.overbookings, id) })
	return nil
}

func (t *txn) UpdateOverbooking(_ context.Context, r model.OverbookingRequest, from model.OverbookingStatus) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	old, ok := t.s.overbookings[r.ID]
	if !ok || old.Status != from {
		return false, nil
	}
	t.s.overbookings[r.ID] = r
	t.undo = append(t.undo, func() { t.s.overbookings[old.ID] = old })
	return true, nil
}

func (t *txn) Parcel(_ context.Context, code string) (model.Parcel, error) {
	p, ok := t.s.parcels[code]
	if !ok {
		return model.Parcel{}, fmt.Errorf("%w: %s", domain.ErrParcelNotFound, code)
	}
	return p, nil
}

func (t *txn) InsertParcel(_ context.Context, p *model.Parcel) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.s.parcels[p.Code]; ok {
		return fmt.Errorf("%w: %s", domain.ErrParcelExists, p.Code)
	}
	p.ID = t.s.nextID()
	t.s.parcels[p.Code] = *p
	code := p.Code
	t.undo = append(t.undo, func() { delete(t.s.parcels, code) })
	return nil
}

func (t *txn) UpdateParcel(_ context.Context, p model.Parcel, from model.ParcelStatus) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	old, ok := t.s.parcels[p.Code]
	if !ok || old.Status != from {
		return false, nil
	}
	t.s.parcels[p.Code] = p
	t.undo = append(t.undo, func() { t.s.parcels[old.Code] = old })
	return true, nil
}
