package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
)

func seeded(t *testing.T) (*Store, model.Trip) {
	t.Helper()
	s := New()
	r, stops := s.AddRoute("Bogota - Tunja", "Bogota", "Chia", "Zipaquira", "Tunja")
	require.Len(t, stops, 4)
	assert.Equal(t, 3, stops[3].Ordinal)
	bus := s.AddBus("ABC-123", SeatNumbers(4)...)
	assert.Equal(t, 4, bus.Capacity)
	trip := s.AddTrip(model.Trip{RouteID: r.ID, BusID: &bus.ID, DepartureAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)})
	assert.Equal(t, model.TripScheduled, trip.Status)
	return s, trip
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s, trip := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx service.Tx) error {
		h := model.SeatHold{TripID: trip.ID, SeatNumber: "1", FromOrdinal: 0, ToOrdinal: 2, Status: model.HoldActive}
		require.NoError(t, tx.InsertHold(ctx, &h))
		upd := trip
		upd.Status = model.TripBoarding
		ok, err := tx.UpdateTrip(ctx, upd, model.TripScheduled)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.Read(ctx, func(tx service.Tx) error {
		holds, err := tx.ActiveHolds(ctx, trip.ID, "")
		require.NoError(t, err)
		assert.Empty(t, holds)
		got, err := tx.Trip(ctx, trip.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TripScheduled, got.Status)
		return nil
	}))
}

func TestCompareAndSwapMisses(t *testing.T) {
	s, trip := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(tx service.Tx) error {
		h := model.SeatHold{TripID: trip.ID, SeatNumber: "2", FromOrdinal: 1, ToOrdinal: 3, Status: model.HoldActive}
		require.NoError(t, tx.InsertHold(ctx, &h))
		ok, err := tx.SetHoldStatus(ctx, h.ID, model.HoldActive, model.HoldReleased, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.SetHoldStatus(ctx, h.ID, model.HoldActive, model.HoldExpired, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestReadRejectsWrites(t *testing.T) {
	s, trip := seeded(t)
	ctx := context.Background()
	err := s.Read(ctx, func(tx service.Tx) error {
		return tx.InsertTicket(ctx, &model.Ticket{TripID: trip.ID})
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestExpireHoldsOnlyTouchesDueActiveHolds(t *testing.T) {
	s, trip := seeded(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	require.NoError(t, s.Atomic(ctx, func(tx service.Tx) error {
		for i, h := range []model.SeatHold{
			{SeatNumber: "1", ExpiresAt: now.Add(-time.Minute), Status: model.HoldActive},
			{SeatNumber: "2", ExpiresAt: now.Add(time.Minute), Status: model.HoldActive},
			{SeatNumber: "3", ExpiresAt: now.Add(-time.Minute), Status: model.HoldConverted},
		} {
			h.TripID = trip.ID
			h.FromOrdinal, h.ToOrdinal = 0, i+1
			require.NoError(t, tx.InsertHold(ctx, &h))
		}
		return nil
	}))

	var expired []model.SeatHold
	require.NoError(t, s.Atomic(ctx, func(tx service.Tx) (err error) {
		expired, err = tx.ExpireHolds(ctx, now)
		return err
	}))
	require.Len(t, expired, 1)
	assert.Equal(t, "1", expired[0].SeatNumber)
	assert.Equal(t, model.HoldExpired, expired[0].Status)

	require.NoError(t, s.Atomic(ctx, func(tx service.Tx) (err error) {
		expired, err = tx.ExpireHolds(ctx, now)
		return err
	}))
	assert.Empty(t, expired)
}

func TestParcelCodeIsUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.Atomic(ctx, func(tx service.Tx) error {
		require.NoError(t, tx.InsertParcel(ctx, &model.Parcel{Code: "PCL-001", Status: model.ParcelCreated}))
		return tx.InsertParcel(ctx, &model.Parcel{Code: "PCL-001", Status: model.ParcelCreated})
	})
	require.ErrorIs(t, err, domain.ErrParcelExists)

	err = s.Read(ctx, func(tx service.Tx) error {
		_, err := tx.Parcel(ctx, "PCL-001")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrParcelNotFound)
}

func TestTopologyLookups(t *testing.T) {
	s, trip := seeded(t)
	ctx := context.Background()
	s.AddFare(trip.RouteID, 0, 3, 90000)

	cents, ok, err := s.Fare(ctx, trip.RouteID, 0, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 90000, cents)

	_, ok, _ = s.Fare(ctx, trip.RouteID, 1, 2)
	assert.False(t, ok)

	_, err = s.Bus(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrUnknownBus)
	_, err = s.StopsOf(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrUnknownRoute)
}
