package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
	"github.com/iliyamo/segment-reservation/internal/utils"
)

type ticketBody struct {
	HoldID        uint64              `json:"hold_id" validate:"required"`
	PassengerID   uint64              `json:"passenger_id"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required,oneof=CASH TRANSFER QR CARD"`
}

type confirmBody struct {
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"omitempty,oneof=CASH TRANSFER QR CARD"`
}

type reasonBody struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CreateTicket handles POST /v1/tickets: converts a hold into a ticket.
// Passengers buy for themselves from their own holds; clerks name the
// passenger. The price comes from the route's fare rules.
func (h *Handler) CreateTicket(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	var body ticketBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	req := service.TicketRequest{
		HoldID:        body.HoldID,
		PassengerID:   body.PassengerID,
		PaymentMethod: body.PaymentMethod,
	}
	if rc.Role == domain.RolePassenger {
		hold, err := h.Engine.Holds.Get(c.Request().Context(), body.HoldID)
		if err != nil {
			return h.fail(c, err)
		}
		if hold.UserID != rc.UserID {
			return h.fail(c, fmt.Errorf("%w: %d", domain.ErrHoldNotFound, body.HoldID))
		}
		req.PassengerID = rc.UserID
	}
	if req.PassengerID == 0 {
		return h.fail(c, fmt.Errorf("%w: passenger_id is required", domain.ErrInvalidRequest))
	}
	tk, err := h.Engine.Tickets.CreateTicket(c.Request().Context(), rc, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, tk)
}

// Ticket handles GET /v1/tickets/:id.
func (h *Handler) Ticket(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	tk, err := h.ownTicket(c, rc)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

// ConfirmPayment handles POST /v1/tickets/:id/confirm.
func (h *Handler) ConfirmPayment(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var body confirmBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	tk, err := h.Engine.Tickets.ConfirmPayment(c.Request().Context(), rc, id, body.PaymentMethod)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

// CancelTicket handles POST /v1/tickets/:id/cancel.
func (h *Handler) CancelTicket(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	tk, err := h.ownTicket(c, rc)
	if err != nil {
		return h.fail(c, err)
	}
	var body reasonBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	tk, err = h.Engine.Tickets.Cancel(c.Request().Context(), rc, tk.ID, body.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

// MarkUsed handles POST /v1/tickets/:id/used.
func (h *Handler) MarkUsed(c echo.Context) error {
	return h.boarding(c, h.Engine.Tickets.MarkUsed)
}

// MarkNoShow handles POST /v1/tickets/:id/no-show.
func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.boarding(c, h.Engine.Tickets.MarkNoShow)
}

func (h *Handler) boarding(c echo.Context, op func(context.Context, domain.RequestContext, uint64) (model.Ticket, error)) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	tk, err := op(c.Request().Context(), rc, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

// TicketByQR handles GET /v1/tickets/qr/:code.
func (h *Handler) TicketByQR(c echo.Context) error {
	code := c.Param("code")
	if len(code) != utils.QRCodeLength {
		return h.fail(c, fmt.Errorf("%w: malformed code", domain.ErrInvalidRequest))
	}
	tk, err := h.Engine.Tickets.ByQR(c.Request().Context(), code)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

// TicketQR handles GET /v1/tickets/:id/qr.png.
func (h *Handler) TicketQR(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	tk, err := h.ownTicket(c, rc)
	if err != nil {
		return h.fail(c, err)
	}
	png, err := utils.TicketQRPNG(tk.QRCode, h.QRSize)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

// TripTickets handles GET /v1/trips/:id/tickets, the boarding manifest.
func (h *Handler) TripTickets(c echo.Context) error {
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	tickets, err := h.Engine.Tickets.ListByTrip(c.Request().Context(), tripID)
	if err != nil {
		return h.fail(c, err)
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": tripID, "tickets": tickets})
}

// ownTicket loads the ticket named in the path; passengers only see their
// own.
func (h *Handler) ownTicket(c echo.Context, rc domain.RequestContext) (model.Ticket, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return model.Ticket{}, err
	}
	tk, err := h.Engine.Tickets.Get(c.Request().Context(), id)
	if err != nil {
		return model.Ticket{}, err
	}
	if rc.Role == domain.RolePassenger && tk.PassengerID != rc.UserID {
		return model.Ticket{}, fmt.Errorf("%w: %d", domain.ErrTicketNotFound, id)
	}
	return tk, nil
}
