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

type overbookingBody struct {
	TicketID uint64 `json:"ticket_id" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

type saleBody struct {
	SeatNumber    string              `json:"seat_number" validate:"required,seatnum"`
	From          *int                `json:"from_ordinal" validate:"required,gte=0"`
	To            *int                `json:"to_ordinal" validate:"required,gte=0"`
	PassengerID   uint64              `json:"passenger_id" validate:"required"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required,oneof=CASH TRANSFER QR CARD"`
	Reason        string              `json:"reason" validate:"required,max=500"`
}

type notesBody struct {
	Notes string `json:"notes" validate:"max=500"`
}

// RequestOverbooking handles POST /v1/trips/:id/overbookings for an
// existing ticket.
func (h *Handler) RequestOverbooking(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var body overbookingBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	req, err := h.Engine.Overbooking.RequestOverbooking(c.Request().Context(), rc, tripID, body.TicketID, body.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, req)
}

// SellOverCapacity handles POST /v1/trips/:id/overbookings/sell: a
// provisional ticket on a saturated segment plus its pending request.
func (h *Handler) SellOverCapacity(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var body saleBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	tk, req, err := h.Engine.Overbooking.SellOverCapacity(c.Request().Context(), rc, service.OverCapacitySale{
		TripID:        tripID,
		SeatNumber:    body.SeatNumber,
		From:          *body.From,
		To:            *body.To,
		PassengerID:   body.PassengerID,
		PaymentMethod: body.PaymentMethod,
		Reason:        body.Reason,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ticket": tk, "request": req})
}

// ApproveOverbooking handles POST /v1/overbookings/:id/approve.
func (h *Handler) ApproveOverbooking(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var body notesBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	req, err := h.Engine.Overbooking.Approve(c.Request().Context(), rc, id, body.Notes)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// RejectOverbooking handles POST /v1/overbookings/:id/reject.
func (h *Handler) RejectOverbooking(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var body reasonBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	req, err := h.Engine.Overbooking.Reject(c.Request().Context(), rc, id, body.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// Overbooking handles GET /v1/overbookings/:id.
func (h *Handler) Overbooking(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	req, err := h.Engine.Overbooking.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// ListOverbookings handles GET /v1/overbookings?status=&trip_id=. Both
// filters are optional.
func (h *Handler) ListOverbookings(c echo.Context) error {
	status := model.OverbookingStatus(c.QueryParam("status"))
	switch status {
	case "", model.OverbookingRequestPending, model.OverbookingRequestApproved,
		model.OverbookingRequestRejected, model.OverbookingRequestExpired:
	default:
		return h.fail(c, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, status))
	}
	var tripID uint64
	if raw := c.QueryParam("trip_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return h.fail(c, fmt.Errorf("%w: invalid trip_id", domain.ErrInvalidRequest))
		}
		tripID = id
	}
	list, err := h.Engine.Overbooking.List(c.Request().Context(), status, tripID)
	if err != nil {
		return h.fail(c, err)
	}
	if list == nil {
		list = []model.OverbookingRequest{}
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": list})
}

// Occupancy handles GET /v1/trips/:id/occupancy.
func (h *Handler) Occupancy(c echo.Context) error {
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	rate, err := h.Engine.Overbooking.OccupancyRate(c.Request().Context(), tripID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": tripID, "occupancy_rate": rate})
}
