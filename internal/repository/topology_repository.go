package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

// TopologyRepo reads and seeds the reference data: routes with their
// ordered stops, buses with their seats, and segment fares. Reads run on
// the pool directly, outside any unit of work.
type TopologyRepo struct {
	db *sql.DB
}

// NewTopologyRepo constructs a TopologyRepo with the given DB handle.
func NewTopologyRepo(db *sql.DB) *TopologyRepo { return &TopologyRepo{db: db} }

func (r *TopologyRepo) Route(ctx context.Context, routeID uint64) (model.Route, error) {
	var rt model.Route
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM routes WHERE id = ?`, routeID).Scan(&rt.ID, &rt.Name)
	if err != nil {
		return model.Route{}, notFound(err, domain.ErrUnknownRoute, routeID)
	}
	return rt, nil
}

// StopsOf returns the stops of a route ordered by ordinal.
func (r *TopologyRepo) StopsOf(ctx context.Context, routeID uint64) ([]model.Stop, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, route_id, name, ordinal FROM stops WHERE route_id = ? ORDER BY ordinal`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Stop
	for rows.Next() {
		var s model.Stop
		if err := rows.Scan(&s.ID, &s.RouteID, &s.Name, &s.Ordinal); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *TopologyRepo) Bus(ctx context.Context, busID uint64) (model.Bus, error) {
	var b model.Bus
	err := r.db.QueryRowContext(ctx, `SELECT id, plate, capacity FROM buses WHERE id = ?`, busID).Scan(&b.ID, &b.Plate, &b.Capacity)
	if err != nil {
		return model.Bus{}, notFound(err, domain.ErrUnknownBus, busID)
	}
	return b, nil
}

// SeatsOf returns the seats of a bus ordered by position.
func (r *TopologyRepo) SeatsOf(ctx context.Context, busID uint64) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bus_id, seat_number FROM seats WHERE bus_id = ? ORDER BY position`, busID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.BusID, &s.SeatNumber); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Fare looks up the price of exactly [from, to). ok is false when no rule
// is configured.
func (r *TopologyRepo) Fare(ctx context.Context, routeID uint64, from, to int) (uint32, bool, error) {
	var cents uint32
	err := r.db.QueryRowContext(ctx,
		`SELECT price_cents FROM fares WHERE route_id = ? AND from_ordinal = ? AND to_ordinal = ?`,
		routeID, from, to).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cents, true, nil
}

// CreateRoute inserts a route and its stops in one transaction. Stop
// ordinals follow the order of names, starting at 0.
func (r *TopologyRepo) CreateRoute(ctx context.Context, name string, stopNames []string) (model.Route, error) {
	if len(stopNames) < 2 {
		return model.Route{}, fmt.Errorf("%w: a route needs at least two stops", domain.ErrInvalidRequest)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Route{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO routes (name) VALUES (?)`, name)
	if err != nil {
		return model.Route{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Route{}, err
	}
	query := `INSERT INTO stops (route_id, name, ordinal) VALUES `
	args := make([]any, 0, len(stopNames)*3)
	for i, n := range stopNames {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, id, n, i)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return model.Route{}, err
	}
	return model.Route{ID: uint64(id), Name: name}, tx.Commit()
}

// CreateBus inserts a bus and its seats in a single statement per table.
// Capacity is the number of seats.
func (r *TopologyRepo) CreateBus(ctx context.Context, plate string, seatNumbers []string) (model.Bus, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Bus{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO buses (plate, capacity) VALUES (?, ?)`, plate, len(seatNumbers))
	if err != nil {
		return model.Bus{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Bus{}, err
	}
	if len(seatNumbers) > 0 {
		query := `INSERT INTO seats (bus_id, seat_number, position) VALUES `
		args := make([]any, 0, len(seatNumbers)*3)
		for i, n := range seatNumbers {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, id, n, i)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return model.Bus{}, err
		}
	}
	return model.Bus{ID: uint64(id), Plate: plate, Capacity: len(seatNumbers)}, tx.Commit()
}

// SetFare creates or replaces the price of one segment.
func (r *TopologyRepo) SetFare(ctx context.Context, routeID uint64, from, to int, cents uint32) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fares (route_id, from_ordinal, to_ordinal, price_cents) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE price_cents = VALUES(price_cents)`, routeID, from, to, cents)
	return err
}

// CreateTrip schedules a trip. busID may be nil.
func (r *TopologyRepo) CreateTrip(ctx context.Context, routeID uint64, busID *uint64, departureAt time.Time) (model.Trip, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO trips (route_id, bus_id, departure_at, status, updated_at) VALUES (?, ?, ?, 'SCHEDULED', ?)`,
		routeID, ptrArg(busID), departureAt.UTC(), now)
	if err != nil {
		return model.Trip{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Trip{}, err
	}
	return model.Trip{ID: uint64(id), RouteID: routeID, BusID: busID, DepartureAt: departureAt.UTC(),
		Status: model.TripScheduled, UpdatedAt: now}, nil
}
