package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
)

// RouteStops handles GET /v1/routes/:id/stops.
func (h *Handler) RouteStops(c echo.Context) error {
	routeID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	stops, err := h.Engine.Topology.StopsOf(c.Request().Context(), routeID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"route_id": routeID, "stops": stops})
}

// Trip handles GET /v1/trips/:id.
func (h *Handler) Trip(c echo.Context) error {
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	trip, err := h.Engine.Trips.Get(c.Request().Context(), tripID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, trip)
}

// Availability handles GET /v1/trips/:id/availability. The segment is
// given either as ordinals (?from=&to=) or as stop IDs
// (?from_stop=&to_stop=).
func (h *Handler) Availability(c echo.Context) error {
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx := c.Request().Context()
	seg, err := h.segmentFromQuery(c, tripID)
	if err != nil {
		return h.fail(c, err)
	}
	seats, err := h.Engine.Availability.Availability(ctx, tripID, seg.From, seg.To)
	if err != nil {
		return h.fail(c, err)
	}
	free := 0
	for _, s := range seats {
		if s.Status == service.SeatFree {
			free++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trip_id":      tripID,
		"from_ordinal": seg.From,
		"to_ordinal":   seg.To,
		"free":         free,
		"seats":        seats,
	})
}

func (h *Handler) segmentFromQuery(c echo.Context, tripID uint64) (model.Segment, error) {
	if fs, ts := c.QueryParam("from_stop"), c.QueryParam("to_stop"); fs != "" || ts != "" {
		fromStop, err1 := strconv.ParseUint(fs, 10, 64)
		toStop, err2 := strconv.ParseUint(ts, 10, 64)
		if err1 != nil || err2 != nil {
			return model.Segment{}, fmt.Errorf("%w: from_stop and to_stop must be stop ids", domain.ErrInvalidRequest)
		}
		trip, err := h.Engine.Trips.Get(c.Request().Context(), tripID)
		if err != nil {
			return model.Segment{}, err
		}
		return h.Engine.Topology.SegmentBetween(c.Request().Context(), trip.RouteID, fromStop, toStop)
	}
	from, err1 := strconv.Atoi(c.QueryParam("from"))
	to, err2 := strconv.Atoi(c.QueryParam("to"))
	if err1 != nil || err2 != nil {
		return model.Segment{}, fmt.Errorf("%w: from and to ordinals are required", domain.ErrInvalidRequest)
	}
	return model.Segment{From: from, To: to}, nil
}
