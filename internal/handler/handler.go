// Package handler exposes the reservation engine over HTTP. Handlers
// translate path and body parameters into engine calls; every business
// rule lives in the service layer.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/logger"
	"github.com/iliyamo/segment-reservation/internal/middleware"
	"github.com/iliyamo/segment-reservation/internal/service"
)

// Handler serves every /v1 endpoint.
type Handler struct {
	Engine *service.Engine
	Log    *logger.Logger
	QRSize int // edge of rendered ticket QR codes in pixels

	// AutoTrips is passed to manual sweeps.
	AutoTrips bool
}

// New returns a Handler. It panics when eng is nil.
func New(eng *service.Engine, log *logger.Logger) *Handler {
	if eng == nil {
		panic("nil engine passed to handler.New")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Engine: eng, Log: log, QRSize: 256}
}

// caller returns the verified identity. The routes are always mounted
// behind JWTAuth, so a missing identity is a wiring bug.
func caller(c echo.Context) (domain.RequestContext, error) {
	rc, ok := middleware.RequestContext(c)
	if !ok {
		return domain.RequestContext{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return rc, nil
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrInvalidRequest, name)
	}
	return id, nil
}

// bind decodes the JSON body into dst and runs struct validation.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidRequest)
	}
	if err := c.Validate(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

// errorKinds maps each domain error to its status and a stable code.
var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidSegment, http.StatusBadRequest, "invalid_segment"},
	{domain.ErrUnknownStop, http.StatusBadRequest, "unknown_stop"},
	{domain.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},

	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},

	{domain.ErrUnknownTrip, http.StatusNotFound, "unknown_trip"},
	{domain.ErrUnknownRoute, http.StatusNotFound, "unknown_route"},
	{domain.ErrUnknownBus, http.StatusNotFound, "unknown_bus"},
	{domain.ErrUnknownSeat, http.StatusNotFound, "unknown_seat"},
	{domain.ErrHoldNotFound, http.StatusNotFound, "hold_not_found"},
	{domain.ErrTicketNotFound, http.StatusNotFound, "ticket_not_found"},
	{domain.ErrParcelNotFound, http.StatusNotFound, "parcel_not_found"},
	{domain.ErrOverbookingNotFound, http.StatusNotFound, "overbooking_not_found"},

	{domain.ErrSegmentConflict, http.StatusConflict, "segment_conflict"},
	{domain.ErrTripNotBookable, http.StatusConflict, "trip_not_bookable"},
	{domain.ErrTripHasNoBus, http.StatusConflict, "trip_has_no_bus"},
	{domain.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domain.ErrParcelExists, http.StatusConflict, "parcel_exists"},
	{domain.ErrCapacityAvailable, http.StatusConflict, "capacity_available"},
	{domain.ErrOverbookingNotAllowed, http.StatusConflict, "overbooking_not_allowed"},

	{domain.ErrHoldExpired, http.StatusGone, "hold_expired"},

	{domain.ErrOtpMismatch, http.StatusUnprocessableEntity, "otp_mismatch"},
	{domain.ErrCapacityExceeded, http.StatusUnprocessableEntity, "capacity_exceeded"},
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// fail writes err as a JSON error body. Unexpected errors are logged and
// their text is not exposed.
func (h *Handler) fail(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return err
	}
	status, code := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("API", fmt.Sprintf("%s %s: %v", c.Request().Method, c.Path(), err))
		return c.JSON(status, echo.Map{"error": code, "message": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": code, "message": err.Error()})
}
