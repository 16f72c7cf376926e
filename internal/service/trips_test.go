package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/queue"
	"github.com/iliyamo/segment-reservation/internal/service"
)

func TestTripStateMachine(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	id := f.trip.ID

	_, err := f.eng.Trips.Depart(ctx, driver, id)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = f.eng.Trips.CloseBoarding(ctx, driver, id)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	trip, err := f.eng.Trips.OpenBoarding(ctx, driver, id)
	require.NoError(t, err)
	assert.Equal(t, model.TripBoarding, trip.Status)
	f.hold(t, "1", 0, 2)

	trip, err = f.eng.Trips.CloseBoarding(ctx, driver, id)
	require.NoError(t, err)
	assert.Equal(t, model.TripBoarding, trip.Status)
	require.NotNil(t, trip.BoardingClosedAt)
	_, err = f.eng.Trips.CloseBoarding(ctx, driver, id)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: id, SeatNumber: "2", From: 0, To: 2})
	assert.ErrorIs(t, err, domain.ErrTripNotBookable)

	trip, err = f.eng.Trips.Depart(ctx, driver, id)
	require.NoError(t, err)
	assert.Equal(t, model.TripDeparted, trip.Status)

	_, err = f.eng.Trips.Cancel(ctx, dispatcher, id, "breakdown")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	trip, err = f.eng.Trips.Arrive(ctx, driver, id)
	require.NoError(t, err)
	assert.Equal(t, model.TripArrived, trip.Status)
	_, err = f.eng.Trips.Arrive(ctx, driver, id)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	assert.Equal(t, 3, f.rec.count(queue.TripStatusChanged))
}

func TestCancelBoardingTripCascades(t *testing.T) {
	f := newFixture(t, 8, 48*time.Hour)
	_, err := f.eng.Trips.OpenBoarding(ctx, dispatcher, f.trip.ID)
	require.NoError(t, err)

	var sold []model.Ticket
	for _, seat := range []string{"1", "2", "3"} {
		sold = append(sold, f.sell(t, seat, 0, 5, model.PaymentCard))
	}
	h := f.hold(t, "4", 1, 3)

	trip, err := f.eng.Trips.Cancel(ctx, dispatcher, f.trip.ID, "road closed")
	require.NoError(t, err)
	assert.Equal(t, model.TripCancelled, trip.Status)

	for _, tk := range sold {
		got, err := f.eng.Tickets.Get(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TicketCancelled, got.Status)
		assert.Equal(t, got.PriceCents, got.RefundCents)
	}
	got, err := f.eng.Holds.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldReleased, got.Status)

	assert.Equal(t, 3, f.rec.count(queue.TicketCancelled))
	assert.Equal(t, 1, f.rec.count(queue.TripCancelled))

	_, err = f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: f.trip.ID, SeatNumber: "5", From: 0, To: 1})
	assert.ErrorIs(t, err, domain.ErrTripNotBookable)
	_, err = f.eng.Trips.OpenBoarding(ctx, dispatcher, f.trip.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestAutoAdvance(t *testing.T) {
	f := newFixture(t, 4, 20*time.Minute)
	later := f.store.AddTrip(model.Trip{RouteID: f.route.ID, BusID: f.trip.BusID, DepartureAt: start.Add(5 * time.Hour)})

	n, err := f.eng.Trips.AutoAdvance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	trip, err := f.eng.Trips.Get(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TripBoarding, trip.Status)

	f.clock.Advance(21 * time.Minute)
	n, err = f.eng.Trips.AutoAdvance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	trip, err = f.eng.Trips.Get(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TripDeparted, trip.Status)

	other, err := f.eng.Trips.Get(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TripScheduled, other.Status)
}
