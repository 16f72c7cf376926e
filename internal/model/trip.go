package model

import "time"

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripScheduled TripStatus = "SCHEDULED"
	TripBoarding  TripStatus = "BOARDING"
	TripDeparted  TripStatus = "DEPARTED"
	TripArrived   TripStatus = "ARRIVED"
	TripCancelled TripStatus = "CANCELLED"
)

// Bookable reports whether new holds and tickets may be created.
func (s TripStatus) Bookable() bool {
	return s == TripScheduled || s == TripBoarding
}

// Trip is one scheduled run of a bus along a route. It owns the
// reservation state of every seat for its whole lifetime.
//
// Fields:
//  BusID            – nil until a bus is assigned.
//  BoardingClosedAt – set by closeBoarding; sales stop but the trip stays BOARDING.
type Trip struct {
	ID               uint64     `json:"id"`                           // trips.id
	RouteID          uint64     `json:"route_id"`                     // trips.route_id
	BusID            *uint64    `json:"bus_id,omitempty"`             // trips.bus_id (nullable)
	DepartureAt      time.Time  `json:"departure_at"`                 // trips.departure_at
	Status           TripStatus `json:"status"`                       // trips.status
	BoardingClosedAt *time.Time `json:"boarding_closed_at,omitempty"` // trips.boarding_closed_at (nullable)
	UpdatedAt        time.Time  `json:"updated_at"`                   // trips.updated_at
}

// SalesOpen reports whether seat sales are currently accepted.
func (t Trip) SalesOpen() bool {
	return t.Status.Bookable() && t.BoardingClosedAt == nil
}
