package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/service"
)

type quickSaleBody struct {
	SeatNumber    string              `json:"seat_number" validate:"required,seatnum"`
	From          *int                `json:"from_ordinal" validate:"required,gte=0"`
	To            *int                `json:"to_ordinal" validate:"required,gte=0"`
	PassengerID   uint64              `json:"passenger_id" validate:"required"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"omitempty,oneof=CASH TRANSFER QR CARD"`
	Discount      bool                `json:"discount"`
}

// QuickSaleSeats handles GET /v1/trips/:id/quick-sale: seats still free
// on the queried segment, flagged when a no-show released them.
func (h *Handler) QuickSaleSeats(c echo.Context) error {
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	seg, err := h.segmentFromQuery(c, tripID)
	if err != nil {
		return h.fail(c, err)
	}
	offer, err := h.Engine.QuickSale.Seats(c.Request().Context(), tripID, seg.From, seg.To)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, offer)
}

// QuickSale handles POST /v1/trips/:id/quick-sale. Payment defaults to
// CARD, so the ticket is issued SOLD.
func (h *Handler) QuickSale(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	tripID, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var body quickSaleBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	tk, err := h.Engine.QuickSale.Sell(c.Request().Context(), rc, service.QuickSaleRequest{
		TripID:        tripID,
		SeatNumber:    body.SeatNumber,
		From:          *body.From,
		To:            *body.To,
		PassengerID:   body.PassengerID,
		PaymentMethod: body.PaymentMethod,
		Discount:      body.Discount,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, tk)
}
