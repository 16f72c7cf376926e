package service_test

import (
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
)

func TestHoldTicketCancelFreesSegment(t *testing.T) {
	f := newFixture(t, 40, 48*time.Hour)

	h := f.hold(t, "12", 0, 3)
	assert.Equal(t, model.HoldActive, h.Status)
	assert.Equal(t, start.Add(10*time.Minute), h.ExpiresAt)
	assert.NotEmpty(t, h.HoldToken)
	assert.Equal(t, service.SeatHeld, f.status(t, "12", 0, 3))

	tk, err := f.eng.Tickets.CreateTicket(ctx, clerk, service.TicketRequest{HoldID: h.ID, PassengerID: 5, PaymentMethod: model.PaymentCard})
	require.NoError(t, err)
	assert.Equal(t, model.TicketSold, tk.Status)
	assert.Equal(t, service.SeatOccupied, f.status(t, "12", 0, 3))

	converted, err := f.eng.Holds.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldConverted, converted.Status)

	_, err = f.eng.Tickets.Cancel(ctx, passenger, tk.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, service.SeatFree, f.status(t, "12", 0, 3))

	again := f.hold(t, "12", 0, 3)
	assert.NotEqual(t, h.ID, again.ID)
}

func TestConcurrentOverlappingHoldsExactlyOneWins(t *testing.T) {
	for run := 0; run < 20; run++ {
		f := newFixture(t, 40, 48*time.Hour)
		segments := [][2]int{{1, 4}, {2, 5}}
		errs := make([]error, len(segments))
		begin := make(chan struct{})
		var wg sync.WaitGroup
		for i, seg := range segments {
			wg.Add(1)
			go func(i int, from, to int) {
				defer wg.Done()
				<-begin
				_, errs[i] = f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: f.trip.ID, SeatNumber: "5", From: from, To: to})
			}(i, seg[0], seg[1])
		}
		close(begin)
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrSegmentConflict)
		}
		assert.Equal(t, 1, wins)
	}
}

func TestAdjacentSegmentsShareASeat(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	f.hold(t, "2", 0, 2)
	f.hold(t, "2", 2, 4)
	f.sell(t, "2", 4, 5, model.PaymentCash)

	_, err := f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: f.trip.ID, SeatNumber: "2", From: 1, To: 3})
	assert.ErrorIs(t, err, domain.ErrSegmentConflict)
	f.assertNoOverlap(t)
}

func TestCreateHoldValidatesInput(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	cases := []struct {
		name string
		req  service.HoldRequest
		want error
	}{
		{"empty range", service.HoldRequest{SeatNumber: "1", From: 3, To: 3}, domain.ErrInvalidSegment},
		{"reversed range", service.HoldRequest{SeatNumber: "1", From: 4, To: 1}, domain.ErrInvalidSegment},
		{"past last stop", service.HoldRequest{SeatNumber: "1", From: 2, To: 9}, domain.ErrUnknownStop},
		{"unknown seat", service.HoldRequest{SeatNumber: "99", From: 0, To: 2}, domain.ErrUnknownSeat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.TripID = f.trip.ID
			_, err := f.eng.Holds.CreateHold(ctx, passenger, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: 424242, SeatNumber: "1", From: 0, To: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownTrip)

	busless := f.store.AddTrip(model.Trip{RouteID: f.route.ID, DepartureAt: start.Add(time.Hour)})
	_, err = f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: busless.ID, SeatNumber: "1", From: 0, To: 1})
	assert.ErrorIs(t, err, domain.ErrTripHasNoBus)
}

func TestCapacityExceededWhenEverySeatIsTaken(t *testing.T) {
	f := newFixture(t, 2, 48*time.Hour)
	f.hold(t, "1", 0, 3)
	f.sell(t, "2", 1, 4, model.PaymentCard)

	_, err := f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: f.trip.ID, SeatNumber: "1", From: 1, To: 2})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	// seat 2 is still free on [0,1)
	_, err = f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: f.trip.ID, SeatNumber: "1", From: 0, To: 1})
	assert.ErrorIs(t, err, domain.ErrSegmentConflict)
	f.hold(t, "2", 0, 1)
}

func TestExpireDueIsIdempotent(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	h := f.hold(t, "1", 0, 2)
	f.hold(t, "2", 0, 2)
	f.sell(t, "3", 0, 2, model.PaymentCard)

	f.clock.Advance(11 * time.Minute)
	n, err := f.eng.Holds.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.eng.Holds.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.eng.Holds.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldExpired, got.Status)
	assert.Equal(t, service.SeatOccupied, f.status(t, "3", 0, 2))

	_, err = f.eng.Tickets.CreateTicket(ctx, clerk, service.TicketRequest{HoldID: h.ID, PassengerID: 5, PaymentMethod: model.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrHoldExpired)
}

func TestHoldExpiresExactlyAtTTL(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	h := f.hold(t, "1", 0, 2)
	f.clock.Advance(10 * time.Minute)

	assert.Equal(t, service.SeatFree, f.status(t, "1", 0, 2))
	_, err := f.eng.Tickets.CreateTicket(ctx, clerk, service.TicketRequest{HoldID: h.ID, PassengerID: 5, PaymentMethod: model.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrHoldExpired)
}

func TestStaleHoldIsExpiredOnConflictingAccess(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	stale := f.hold(t, "1", 0, 3)
	f.clock.Advance(11 * time.Minute)

	fresh := f.hold(t, "1", 1, 2)
	assert.Equal(t, model.HoldActive, fresh.Status)

	got, err := f.eng.Holds.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldExpired, got.Status)
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	h := f.hold(t, "3", 1, 5)

	first, err := f.eng.Holds.Release(ctx, passenger, h.ID)
	require.NoError(t, err)
	second, err := f.eng.Holds.Release(ctx, passenger, h.ID)
	require.NoError(t, err)

	assert.Equal(t, model.HoldReleased, first.Status)
	assert.Equal(t, first, second)
	assert.Equal(t, service.SeatFree, f.status(t, "3", 1, 5))

	_, err = f.eng.Holds.Release(ctx, passenger, 777777)
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
}

func TestReleasedHoldCannotBecomeATicket(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	h := f.hold(t, "3", 1, 5)
	_, err := f.eng.Holds.Release(ctx, passenger, h.ID)
	require.NoError(t, err)

	_, err = f.eng.Tickets.CreateTicket(ctx, clerk, service.TicketRequest{HoldID: h.ID, PassengerID: 5, PaymentMethod: model.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
}

func TestAvailabilityClassifiesSeats(t *testing.T) {
	f := newFixture(t, 3, 48*time.Hour)
	f.hold(t, "1", 1, 3)
	f.sell(t, "2", 0, 2, model.PaymentCash)

	av, err := f.eng.Availability.Availability(ctx, f.trip.ID, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []service.SeatAvailability{
		{SeatNumber: "1", Status: service.SeatHeld},
		{SeatNumber: "2", Status: service.SeatOccupied},
		{SeatNumber: "3", Status: service.SeatFree},
	}, av)

	assert.Equal(t, service.SeatHeld, f.status(t, "1", 2, 4))
	assert.Equal(t, service.SeatFree, f.status(t, "2", 2, 4))
	assert.Equal(t, service.SeatFree, f.status(t, "1", 3, 5))

	_, err = f.eng.Availability.Availability(ctx, f.trip.ID, 4, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)
}

func TestSegmentBetweenStops(t *testing.T) {
	f := newFixture(t, 1, 48*time.Hour)
	seg, err := f.eng.Topology.SegmentBetween(ctx, f.route.ID, f.stops[1].ID, f.stops[4].ID)
	require.NoError(t, err)
	assert.Equal(t, model.Segment{From: 1, To: 4}, seg)

	_, err = f.eng.Topology.SegmentBetween(ctx, f.route.ID, f.stops[4].ID, f.stops[1].ID)
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)

	_, err = f.eng.Topology.SegmentBetween(ctx, f.route.ID, f.stops[0].ID, 987654)
	assert.ErrorIs(t, err, domain.ErrUnknownStop)
}

func TestOverlapInvariantUnderConcurrentLoad(t *testing.T) {
	f := newFixture(t, 3, 48*time.Hour)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 40; i++ {
				from := rng.Intn(5)
				to := from + 1 + rng.Intn(5-from)
				seat := strconv.Itoa(1 + rng.Intn(3))
				h, err := f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: f.trip.ID, SeatNumber: seat, From: from, To: to})
				if err != nil {
					if !errors.Is(err, domain.ErrSegmentConflict) && !errors.Is(err, domain.ErrCapacityExceeded) {
						t.Errorf("unexpected error: %v", err)
					}
					continue
				}
				switch rng.Intn(3) {
				case 0:
					_, _ = f.eng.Holds.Release(ctx, passenger, h.ID)
				case 1:
					tk, err := f.eng.Tickets.CreateTicket(ctx, clerk, service.TicketRequest{HoldID: h.ID, PassengerID: 5, PaymentMethod: model.PaymentCash})
					if err == nil && rng.Intn(2) == 0 {
						_, _ = f.eng.Tickets.Cancel(ctx, clerk, tk.ID, "load test")
					}
				}
			}
		}(int64(w + 1))
	}
	wg.Wait()
	f.assertNoOverlap(t)
}
