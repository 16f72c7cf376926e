package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
)

type tripOp func(context.Context, domain.RequestContext, uint64) (model.Trip, error)

func (h *Handler) tripTransition(c echo.Context, op tripOp) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	trip, err := op(c.Request().Context(), rc, tripID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, trip)
}

// OpenBoarding handles POST /v1/trips/:id/open-boarding.
func (h *Handler) OpenBoarding(c echo.Context) error {
	return h.tripTransition(c, h.Engine.Trips.OpenBoarding)
}

// CloseBoarding handles POST /v1/trips/:id/close-boarding.
func (h *Handler) CloseBoarding(c echo.Context) error {
	return h.tripTransition(c, h.Engine.Trips.CloseBoarding)
}

// Depart handles POST /v1/trips/:id/depart.
func (h *Handler) Depart(c echo.Context) error {
	return h.tripTransition(c, h.Engine.Trips.Depart)
}

// Arrive handles POST /v1/trips/:id/arrive.
func (h *Handler) Arrive(c echo.Context) error {
	return h.tripTransition(c, h.Engine.Trips.Arrive)
}

// CancelTrip handles POST /v1/trips/:id/cancel. Every live ticket is
// cancelled and every active hold released in the same unit of work.
func (h *Handler) CancelTrip(c echo.Context) error {
	var body reasonBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	return h.tripTransition(c, func(ctx context.Context, rc domain.RequestContext, id uint64) (model.Trip, error) {
		return h.Engine.Trips.Cancel(ctx, rc, id, body.Reason)
	})
}
