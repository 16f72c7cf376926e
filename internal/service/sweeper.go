package service

import (
	"context"
	"fmt"
)

// SweepResult counts what one sweep changed.
type SweepResult struct {
	HoldsExpired        int   `json:"holds_expired"`
	OverbookingsExpired int   `json:"overbookings_expired"`
	NoShows             int   `json:"no_shows"`
	TripsAdvanced       int   `json:"trips_advanced"`
	HoldsPurged         int64 `json:"holds_purged"`
}

// Sweeper runs the idle maintenance jobs. Every job is idempotent, so
// overlapping or repeated runs are harmless.
type Sweeper struct {
	*base
	holds       *HoldService
	overbooking *OverbookingService
	trips       *TripService
	tickets     *TicketService
}

func (s *Sweeper) ExpireHolds(ctx context.Context) (int, error) { return s.holds.ExpireDue(ctx) }

func (s *Sweeper) ExpireOverbookings(ctx context.Context) (int, error) {
	return s.overbooking.ExpireDue(ctx)
}

func (s *Sweeper) NoShows(ctx context.Context) (int, error) { return s.tickets.SweepNoShows(ctx) }

func (s *Sweeper) AdvanceTrips(ctx context.Context) (int, error) { return s.trips.AutoAdvance(ctx) }

func (s *Sweeper) PurgeHolds(ctx context.Context) (int64, error) { return s.holds.Purge(ctx) }

// Sweep runs every job once. autoTrips enables trip auto-advance. No-shows
// are marked before trips depart so a departing trip is settled first. The
// first error is returned after all jobs have had their turn.
func (s *Sweeper) Sweep(ctx context.Context, autoTrips bool) (SweepResult, error) {
	var res SweepResult
	var firstErr error
	keep := func(job string, err error) {
		if err == nil {
			return
		}
		s.Log.Error("SWEEP", fmt.Sprintf("%s: %v", job, err))
		if firstErr == nil {
			firstErr = err
		}
	}
	var err error
	res.HoldsExpired, err = s.ExpireHolds(ctx)
	keep("expire holds", err)
	res.OverbookingsExpired, err = s.ExpireOverbookings(ctx)
	keep("expire overbookings", err)
	res.NoShows, err = s.NoShows(ctx)
	keep("no-shows", err)
	if autoTrips {
		res.TripsAdvanced, err = s.AdvanceTrips(ctx)
		keep("advance trips", err)
	}
	res.HoldsPurged, err = s.PurgeHolds(ctx)
	keep("purge holds", err)
	return res, firstErr
}
