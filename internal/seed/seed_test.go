package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/segment-reservation/internal/repository"
	"github.com/iliyamo/segment-reservation/internal/repository/memory"
)

var _ Writer = (*repository.TopologyRepo)(nil)

func TestApplyDemoIntoMemory(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)

	res, err := Apply(ctx, Memory(s), Demo, now)
	require.NoError(t, err)

	assert.Equal(t, 40, res.Bus.Capacity)
	assert.Equal(t, 10, res.Fares) // 5 stops: 4+3+2+1 segments
	require.Len(t, res.Trips, 3)
	assert.Equal(t, time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC), res.Trips[0].DepartureAt)
	assert.Equal(t, time.Date(2026, 5, 13, 8, 0, 0, 0, time.UTC), res.Trips[2].DepartureAt)

	stops, err := s.StopsOf(ctx, res.Route.ID)
	require.NoError(t, err)
	require.Len(t, stops, 5)
	assert.Equal(t, "Tunja", stops[4].Name)

	cents, ok, err := s.Fare(ctx, res.Route.ID, 1, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(36000), cents)
}
