package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
)

type holdBody struct {
	SeatNumber string `json:"seat_number" validate:"required,seatnum"`
	From       *int   `json:"from_ordinal" validate:"required,gte=0"`
	To         *int   `json:"to_ordinal" validate:"required,gte=0"`
}

// CreateHold handles POST /v1/trips/:id/holds. The hold TTL always comes
// from the server policy.
func (h *Handler) CreateHold(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var body holdBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	hold, err := h.Engine.Holds.CreateHold(c.Request().Context(), rc, service.HoldRequest{
		TripID:     tripID,
		SeatNumber: body.SeatNumber,
		From:       *body.From,
		To:         *body.To,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, hold)
}

// Hold handles GET /v1/holds/:id.
func (h *Handler) Hold(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	hold, err := h.ownHold(c, rc)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, hold)
}

// ReleaseHold handles DELETE /v1/holds/:id. Releasing a terminal hold is
// a no-op that still answers 200.
func (h *Handler) ReleaseHold(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	hold, err := h.ownHold(c, rc)
	if err != nil {
		return h.fail(c, err)
	}
	hold, err = h.Engine.Holds.Release(c.Request().Context(), rc, hold.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, hold)
}

// ownHold loads the hold named in the path. Passengers only reach their
// own holds; anyone else's answers as not found.
func (h *Handler) ownHold(c echo.Context, rc domain.RequestContext) (model.SeatHold, error) {
	holdID, err := pathID(c, "id")
	if err != nil {
		return model.SeatHold{}, err
	}
	hold, err := h.Engine.Holds.Get(c.Request().Context(), holdID)
	if err != nil {
		return model.SeatHold{}, err
	}
	if rc.Role == domain.RolePassenger && hold.UserID != rc.UserID {
		return model.SeatHold{}, fmt.Errorf("%w: %d", domain.ErrHoldNotFound, holdID)
	}
	return hold, nil
}
