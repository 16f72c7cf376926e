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

func TestTicketPaymentAndBoarding(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	tk := f.sell(t, "1", 0, 4, model.PaymentCash)
	assert.Equal(t, model.TicketPendingPayment, tk.Status)
	assert.EqualValues(t, 50000, tk.PriceCents)
	assert.Len(t, tk.QRCode, 16)
	require.NotNil(t, tk.HoldID)

	_, err := f.eng.Tickets.MarkUsed(ctx, driver, tk.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	sold, err := f.eng.Tickets.ConfirmPayment(ctx, clerk, tk.ID, model.PaymentTransfer)
	require.NoError(t, err)
	assert.Equal(t, model.TicketSold, sold.Status)
	assert.Equal(t, model.PaymentTransfer, sold.PaymentMethod)

	_, err = f.eng.Tickets.ConfirmPayment(ctx, clerk, tk.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = f.eng.Trips.OpenBoarding(ctx, driver, f.trip.ID)
	require.NoError(t, err)
	used, err := f.eng.Tickets.MarkUsed(ctx, driver, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketUsed, used.Status)

	_, err = f.eng.Tickets.Cancel(ctx, clerk, tk.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = f.eng.Tickets.MarkNoShow(ctx, driver, tk.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	byQR, err := f.eng.Tickets.ByQR(ctx, tk.QRCode)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, byQR.ID)
	assert.Equal(t, 1, f.rec.count(queue.TicketUsed))
}

func TestPendingTicketCannotBoard(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	tk := f.sell(t, "1", 0, 4, model.PaymentQR)
	_, err := f.eng.Trips.OpenBoarding(ctx, driver, f.trip.ID)
	require.NoError(t, err)

	_, err = f.eng.Tickets.MarkUsed(ctx, driver, tk.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestUnknownPaymentMethodIsRejected(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	h := f.hold(t, "1", 0, 1)
	_, err := f.eng.Tickets.CreateTicket(ctx, clerk, service.TicketRequest{HoldID: h.ID, PassengerID: 5, PaymentMethod: "BARTER"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	got, err := f.eng.Holds.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, got.Status)
}

func TestFareRuleOverridesDefault(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	f.store.AddFare(f.route.ID, 1, 3, 32000)
	assert.EqualValues(t, 32000, f.sell(t, "1", 1, 3, model.PaymentCard).PriceCents)
	assert.EqualValues(t, 50000, f.sell(t, "2", 1, 4, model.PaymentCard).PriceCents)
}

func TestRefundDependsOnTimeToDeparture(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	early := f.sell(t, "1", 0, 2, model.PaymentCard)
	middle := f.sell(t, "2", 0, 2, model.PaymentCard)
	late := f.sell(t, "3", 0, 2, model.PaymentCard)
	unpaid := f.sell(t, "4", 0, 2, model.PaymentCash)

	got, err := f.eng.Tickets.Cancel(ctx, passenger, early.ID, "")
	require.NoError(t, err)
	assert.EqualValues(t, 50000, got.RefundCents)

	f.clock.Advance(30 * time.Hour)
	got, err = f.eng.Tickets.Cancel(ctx, passenger, middle.ID, "")
	require.NoError(t, err)
	assert.EqualValues(t, 25000, got.RefundCents)

	f.clock.Advance(10 * time.Hour)
	got, err = f.eng.Tickets.Cancel(ctx, passenger, late.ID, "")
	require.NoError(t, err)
	assert.Zero(t, got.RefundCents)

	got, err = f.eng.Tickets.Cancel(ctx, passenger, unpaid.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.TicketCancelled, got.Status)
	assert.Zero(t, got.RefundCents)
}

func TestNoShowFee(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	f.store.AddFare(f.route.ID, 0, 3, 90000)
	pricey := f.sell(t, "1", 0, 3, model.PaymentCard)
	cheap := f.sell(t, "2", 0, 1, model.PaymentCard)
	_, err := f.eng.Trips.OpenBoarding(ctx, driver, f.trip.ID)
	require.NoError(t, err)

	got, err := f.eng.Tickets.MarkNoShow(ctx, driver, pricey.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketNoShow, got.Status)
	assert.EqualValues(t, 9000, got.NoShowFeeCents)

	got, err = f.eng.Tickets.MarkNoShow(ctx, driver, cheap.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, got.NoShowFeeCents)

	_, err = f.eng.Tickets.MarkUsed(ctx, driver, cheap.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestListTicketsByTrip(t *testing.T) {
	f := newFixture(t, 4, 48*time.Hour)
	a := f.sell(t, "1", 0, 2, model.PaymentCard)
	b := f.sell(t, "2", 0, 2, model.PaymentCash)
	_, err := f.eng.Tickets.Cancel(ctx, passenger, b.ID, "")
	require.NoError(t, err)

	list, err := f.eng.Tickets.ListByTrip(ctx, f.trip.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, model.TicketCancelled, list[1].Status)

	_, err = f.eng.Tickets.Get(ctx, 123456)
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestSweepNoShowsInsideWindow(t *testing.T) {
	f := newFixture(t, 4, time.Hour)
	due := f.sell(t, "1", 0, 3, model.PaymentCard)
	unpaid := f.sell(t, "2", 0, 3, model.PaymentCash)
	_, err := f.eng.Trips.OpenBoarding(ctx, driver, f.trip.ID)
	require.NoError(t, err)

	later := f.store.AddTrip(model.Trip{RouteID: f.route.ID, BusID: f.trip.BusID, DepartureAt: start.Add(2 * time.Hour)})
	h, err := f.eng.Holds.CreateHold(ctx, passenger, service.HoldRequest{TripID: later.ID, SeatNumber: "1", From: 0, To: 3})
	require.NoError(t, err)
	far, err := f.eng.Tickets.CreateTicket(ctx, clerk, service.TicketRequest{HoldID: h.ID, PassengerID: passenger.UserID, PaymentMethod: model.PaymentCard})
	require.NoError(t, err)
	_, err = f.eng.Trips.OpenBoarding(ctx, driver, later.ID)
	require.NoError(t, err)

	n, err := f.eng.Tickets.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	freed := f.rec.count(queue.SeatAvailable)
	f.clock.Advance(56 * time.Minute)
	n, err = f.eng.Tickets.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.eng.Tickets.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketNoShow, got.Status)
	assert.EqualValues(t, 5000, got.NoShowFeeCents)
	assert.Equal(t, 1, f.rec.count(queue.TicketNoShow))
	assert.Equal(t, freed+1, f.rec.count(queue.SeatAvailable))
	assert.Equal(t, service.SeatFree, f.status(t, "1", 0, 3))

	got, err = f.eng.Tickets.Get(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketPendingPayment, got.Status)

	got, err = f.eng.Tickets.Get(ctx, far.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketSold, got.Status)

	res, err := f.eng.Sweeper.Sweep(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, res.NoShows)
	assert.Equal(t, 1, f.rec.count(queue.TicketNoShow))
}

func TestSweepNoShowsSkipsScheduledTrips(t *testing.T) {
	f := newFixture(t, 4, time.Hour)
	tk := f.sell(t, "1", 0, 3, model.PaymentCard)

	f.clock.Advance(58 * time.Minute)
	n, err := f.eng.Tickets.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.eng.Tickets.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketSold, got.Status)
}
