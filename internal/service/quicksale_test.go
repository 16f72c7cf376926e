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

func TestQuickSaleResellsNoShowSeat(t *testing.T) {
	f := newFixture(t, 2, time.Hour)
	first := f.sell(t, "1", 0, 5, model.PaymentCard)
	_, err := f.eng.Trips.OpenBoarding(ctx, driver, f.trip.ID)
	require.NoError(t, err)

	f.clock.Advance(56 * time.Minute)
	n, err := f.eng.Sweeper.NoShows(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	offer, err := f.eng.QuickSale.Seats(ctx, f.trip.ID, 0, 5)
	require.NoError(t, err)
	assert.True(t, offer.Open)
	assert.Equal(t, 4, offer.MinutesLeft)
	assert.EqualValues(t, 50000, offer.PriceCents)
	assert.EqualValues(t, 40000, offer.DiscountedCents)
	assert.Equal(t, []service.QuickSeat{{SeatNumber: "1", NoShow: true}, {SeatNumber: "2"}}, offer.Seats)

	req := service.QuickSaleRequest{TripID: f.trip.ID, SeatNumber: "1", From: 0, To: 5, PassengerID: 77, Discount: true}
	tk, err := f.eng.QuickSale.Sell(ctx, clerk, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, tk.ID)
	assert.Equal(t, model.TicketSold, tk.Status)
	assert.Equal(t, model.PaymentCard, tk.PaymentMethod)
	assert.EqualValues(t, 40000, tk.PriceCents)
	assert.EqualValues(t, 77, tk.PassengerID)
	assert.Equal(t, service.SeatOccupied, f.status(t, "1", 0, 5))
	f.assertNoOverlap(t)

	_, err = f.eng.QuickSale.Sell(ctx, clerk, req)
	assert.ErrorIs(t, err, domain.ErrSegmentConflict)

	offer, err = f.eng.QuickSale.Seats(ctx, f.trip.ID, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []service.QuickSeat{{SeatNumber: "2"}}, offer.Seats)
}

func TestQuickSaleWindow(t *testing.T) {
	f := newFixture(t, 2, time.Hour)
	req := service.QuickSaleRequest{TripID: f.trip.ID, SeatNumber: "2", From: 0, To: 3, PassengerID: 77}

	_, err := f.eng.QuickSale.Sell(ctx, clerk, req)
	assert.ErrorIs(t, err, domain.ErrTripNotBookable)
	offer, err := f.eng.QuickSale.Seats(ctx, f.trip.ID, 0, 3)
	require.NoError(t, err)
	assert.False(t, offer.Open)
	assert.Len(t, offer.Seats, 2)
	assert.Equal(t, 0, f.rec.count(queue.HoldCreated))

	f.clock.Advance(52 * time.Minute)
	tk, err := f.eng.QuickSale.Sell(ctx, clerk, req)
	require.NoError(t, err)
	assert.Equal(t, model.TicketSold, tk.Status)
	assert.EqualValues(t, 50000, tk.PriceCents)

	req.SeatNumber = "1"
	req.PassengerID = 0
	_, err = f.eng.QuickSale.Sell(ctx, clerk, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	req.PassengerID = 78
	f.clock.Advance(9 * time.Minute)
	_, err = f.eng.QuickSale.Sell(ctx, clerk, req)
	assert.ErrorIs(t, err, domain.ErrTripNotBookable)
}

func TestQuickSaleStopsWhenBoardingCloses(t *testing.T) {
	f := newFixture(t, 2, 5*time.Minute)
	_, err := f.eng.Trips.OpenBoarding(ctx, driver, f.trip.ID)
	require.NoError(t, err)
	_, err = f.eng.Trips.CloseBoarding(ctx, driver, f.trip.ID)
	require.NoError(t, err)

	_, err = f.eng.QuickSale.Sell(ctx, clerk, service.QuickSaleRequest{TripID: f.trip.ID, SeatNumber: "1", From: 0, To: 1, PassengerID: 77})
	assert.ErrorIs(t, err, domain.ErrTripNotBookable)
}

func TestQuickSaleReleasesHoldWhenTicketFails(t *testing.T) {
	f := newFixture(t, 2, 5*time.Minute)
	_, err := f.eng.QuickSale.Sell(ctx, clerk, service.QuickSaleRequest{
		TripID: f.trip.ID, SeatNumber: "1", From: 0, To: 2, PassengerID: 77, PaymentMethod: "BARTER",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, 1, f.rec.count(queue.HoldCreated))
	assert.Equal(t, 1, f.rec.count(queue.HoldReleased))
	assert.Equal(t, service.SeatFree, f.status(t, "1", 0, 2))
}
