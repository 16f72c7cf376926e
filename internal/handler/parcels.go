package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/service"
)

type parcelBody struct {
	Code   string  `json:"code" validate:"required,max=64"`
	OTP    string  `json:"otp" validate:"omitempty,numeric,len=6"`
	TripID *uint64 `json:"trip_id"`
}

type inTransitBody struct {
	TripID uint64 `json:"trip_id"`
}

type deliverBody struct {
	OTP      string `json:"otp" validate:"required,numeric,len=6"`
	ProofURL string `json:"proof_url" validate:"omitempty,url,max=500"`
}

// CreateParcel handles POST /v1/parcels. The plain OTP is returned once,
// in this response only; the store keeps its hash.
func (h *Handler) CreateParcel(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	var body parcelBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	p, otp, err := h.Engine.Parcels.Create(c.Request().Context(), rc, service.ParcelRequest{
		Code:   body.Code,
		OTP:    body.OTP,
		TripID: body.TripID,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"parcel": p, "otp": otp})
}

// Parcel handles GET /v1/parcels/:code.
func (h *Handler) Parcel(c echo.Context) error {
	p, err := h.Engine.Parcels.Get(c.Request().Context(), c.Param("code"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ParcelInTransit handles POST /v1/parcels/:code/in-transit. trip_id may
// be omitted when the parcel was created with one.
func (h *Handler) ParcelInTransit(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	var body inTransitBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	p, err := h.Engine.Parcels.MarkInTransit(c.Request().Context(), rc, c.Param("code"), body.TripID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// DeliverParcel handles POST /v1/parcels/:code/deliver. A wrong OTP
// answers 422 and leaves the parcel IN_TRANSIT.
func (h *Handler) DeliverParcel(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	var body deliverBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	p, err := h.Engine.Parcels.Deliver(c.Request().Context(), rc, c.Param("code"), body.OTP, body.ProofURL)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// FailParcel handles POST /v1/parcels/:code/fail.
func (h *Handler) FailParcel(c echo.Context) error {
	rc, err := caller(c)
	if err != nil {
		return err
	}
	var body reasonBody
	if err := bind(c, &body); err != nil {
		return h.fail(c, err)
	}
	p, err := h.Engine.Parcels.MarkFailed(c.Request().Context(), rc, c.Param("code"), body.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

