package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/segment-reservation/internal/config"
	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/handler"
	"github.com/iliyamo/segment-reservation/internal/model"
	"github.com/iliyamo/segment-reservation/internal/repository/memory"
	"github.com/iliyamo/segment-reservation/internal/service"
	"github.com/iliyamo/segment-reservation/internal/utils"
)

const secret = "router-secret"

type api struct {
	t     *testing.T
	e     *echo.Echo
	trip  model.Trip
	stops []model.Stop
}

func newAPI(t *testing.T) *api {
	t.Helper()
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	store := memory.New()
	route, stops := store.AddRoute("Medellin - Bogota", "Medellin", "Rionegro", "Doradal", "Honda", "Guaduas", "Bogota")
	bus := store.AddBus("TTR-118", memory.SeatNumbers(2)...)
	trip := store.AddTrip(model.Trip{RouteID: route.ID, BusID: &bus.ID, DepartureAt: start.Add(48 * time.Hour)})

	eng := service.New(service.Deps{
		Store:   store,
		Clock:   clockwork.NewFakeClockAt(start),
		Policy:  config.DefaultReservationPolicy(),
		OtpCost: bcrypt.MinCost,
	})
	e := New(handler.New(eng, nil), Options{JWTSecret: secret})
	return &api{t: t, e: e, trip: trip, stops: stops}
}

func (a *api) token(uid uint64, role domain.Role) string {
	tok, err := utils.NewAccessToken(secret, uid, role, time.Hour)
	require.NoError(a.t, err)
	return tok.Token
}

func (a *api) call(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Header().Get(echo.HeaderContentType) != "image/png" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func id(m map[string]any) uint64 { return uint64(m["id"].(float64)) }

func TestHealthAndAuth(t *testing.T) {
	a := newAPI(t)
	rec, body := a.call(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = a.call(http.MethodGet, fmt.Sprintf("/v1/trips/%d", a.trip.ID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = a.call(http.MethodGet, fmt.Sprintf("/v1/trips/%d", a.trip.ID), a.token(11, domain.RolePassenger), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SCHEDULED", body["status"])

	rec, body = a.call(http.MethodGet, "/v1/trips/999", a.token(11, domain.RolePassenger), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_trip", body["error"])
}

func TestBookingFlow(t *testing.T) {
	a := newAPI(t)
	alice := a.token(11, domain.RolePassenger)
	bob := a.token(12, domain.RolePassenger)
	clerk := a.token(21, domain.RoleClerk)
	driver := a.token(31, domain.RoleDriver)
	holds := fmt.Sprintf("/v1/trips/%d/holds", a.trip.ID)

	rec, body := a.call(http.MethodGet, fmt.Sprintf("/v1/trips/%d/availability?from=0&to=3", a.trip.ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["free"])

	rec, hold := a.call(http.MethodPost, holds, alice, echo.Map{"seat_number": "1", "from_ordinal": 0, "to_ordinal": 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ACTIVE", hold["status"])

	rec, body = a.call(http.MethodPost, holds, bob, echo.Map{"seat_number": "1", "from_ordinal": 1, "to_ordinal": 4})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "segment_conflict", body["error"])

	rec, _ = a.call(http.MethodPost, holds, bob, echo.Map{"seat_number": "1", "from_ordinal": 3, "to_ordinal": 5})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, body = a.call(http.MethodPost, holds, bob, echo.Map{"seat_number": "2", "from_ordinal": 3, "to_ordinal": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_segment", body["error"])

	rec, body = a.call(http.MethodPost, holds, bob, echo.Map{"seat_number": "2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body["error"])

	// bob cannot buy alice's hold
	rec, _ = a.call(http.MethodPost, "/v1/tickets", bob, echo.Map{"hold_id": id(hold), "payment_method": "CASH"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, ticket := a.call(http.MethodPost, "/v1/tickets", alice, echo.Map{"hold_id": id(hold), "payment_method": "CASH"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "PENDING_PAYMENT", ticket["status"])
	assert.Equal(t, float64(11), ticket["passenger_id"])
	tpath := fmt.Sprintf("/v1/tickets/%d", id(ticket))

	rec, _ = a.call(http.MethodPost, tpath+"/confirm", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, body = a.call(http.MethodPost, tpath+"/confirm", clerk, echo.Map{"payment_method": "CARD"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SOLD", body["status"])
	assert.Equal(t, "CARD", body["payment_method"])

	rec, _ = a.call(http.MethodGet, tpath, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = a.call(http.MethodGet, tpath, alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.call(http.MethodGet, tpath+"/qr.png", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))

	rec, body = a.call(http.MethodGet, "/v1/tickets/qr/"+ticket["qr_code"].(string), driver, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(id(ticket)), body["id"])

	// used before boarding opens
	rec, body = a.call(http.MethodPost, tpath+"/used", driver, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state_transition", body["error"])

	rec, body = a.call(http.MethodGet, fmt.Sprintf("/v1/trips/%d/availability?from_stop=%d&to_stop=%d", a.trip.ID, a.stops[0].ID, a.stops[2].ID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["free"])

	rec, body = a.call(http.MethodPost, tpath+"/cancel", alice, echo.Map{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Equal(t, float64(50000), body["refund_cents"])
}

func TestTripLifecycleGates(t *testing.T) {
	a := newAPI(t)
	base := fmt.Sprintf("/v1/trips/%d", a.trip.ID)

	rec, _ := a.call(http.MethodPost, base+"/cancel", a.token(11, domain.RolePassenger), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = a.call(http.MethodPost, base+"/cancel", a.token(31, domain.RoleDriver), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	driver := a.token(31, domain.RoleDriver)
	rec, body := a.call(http.MethodPost, base+"/open-boarding", driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BOARDING", body["status"])

	rec, body = a.call(http.MethodPost, base+"/arrive", driver, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state_transition", body["error"])

	rec, body = a.call(http.MethodPost, base+"/depart", driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DEPARTED", body["status"])

	rec, body = a.call(http.MethodGet, base+"/tickets", driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["tickets"])
}

func TestQuickSaleRoutes(t *testing.T) {
	a := newAPI(t)
	path := fmt.Sprintf("/v1/trips/%d/quick-sale", a.trip.ID)
	sale := echo.Map{"seat_number": "1", "from_ordinal": 0, "to_ordinal": 3, "passenger_id": 77, "discount": true}

	rec, _ := a.call(http.MethodPost, path, a.token(11, domain.RolePassenger), sale)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = a.call(http.MethodPost, path, a.token(41, domain.RoleDispatcher), sale)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := a.call(http.MethodPost, path, a.token(21, domain.RoleClerk), sale)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "trip_not_bookable", body["error"])

	rec, _ = a.call(http.MethodPost, path, a.token(21, domain.RoleClerk), echo.Map{"seat_number": "1", "from_ordinal": 0, "to_ordinal": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = a.call(http.MethodGet, path+"?from=0&to=3", a.token(41, domain.RoleDispatcher), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["open"])
	assert.Equal(t, float64(48*60), body["minutes_to_departure"])
	assert.Len(t, body["seats"], 2)
}

func TestParcelFlow(t *testing.T) {
	a := newAPI(t)
	clerk := a.token(21, domain.RoleClerk)
	driver := a.token(31, domain.RoleDriver)

	rec, body := a.call(http.MethodPost, "/v1/parcels", clerk, echo.Map{"code": "PCL-001", "otp": "483920"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "483920", body["otp"])

	rec, body = a.call(http.MethodPost, "/v1/parcels", clerk, echo.Map{"code": "PCL-001"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "parcel_exists", body["error"])

	rec, _ = a.call(http.MethodPost, "/v1/parcels/PCL-001/in-transit", driver, echo.Map{"trip_id": a.trip.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, body = a.call(http.MethodPost, "/v1/parcels/PCL-001/in-transit", clerk, echo.Map{"trip_id": a.trip.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IN_TRANSIT", body["status"])

	rec, body = a.call(http.MethodPost, "/v1/parcels/PCL-001/deliver", driver, echo.Map{"otp": "000000"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "otp_mismatch", body["error"])

	rec, body = a.call(http.MethodGet, "/v1/parcels/PCL-001", driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IN_TRANSIT", body["status"])
	assert.NotContains(t, body, "otp_hash")

	rec, body = a.call(http.MethodPost, "/v1/parcels/PCL-001/deliver", driver, echo.Map{"otp": "483920", "proof_url": "https://proofs.example.com/pcl-001.jpg"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DELIVERED", body["status"])

	rec, _ = a.call(http.MethodGet, "/v1/parcels/NOPE", driver, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOverbookingListAndSweep(t *testing.T) {
	a := newAPI(t)
	dispatcher := a.token(41, domain.RoleDispatcher)

	rec, body := a.call(http.MethodGet, "/v1/overbookings?status=PENDING", dispatcher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["requests"])

	rec, _ = a.call(http.MethodGet, "/v1/overbookings?status=MAYBE", dispatcher, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = a.call(http.MethodPost, fmt.Sprintf("/v1/trips/%d/overbookings/sell", a.trip.ID), a.token(21, domain.RoleClerk), echo.Map{
		"seat_number": "1", "from_ordinal": 0, "to_ordinal": 2, "passenger_id": 77, "payment_method": "CASH", "reason": "family",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "capacity_available", body["error"])

	rec, _ = a.call(http.MethodPost, "/v1/admin/sweep", dispatcher, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, body = a.call(http.MethodPost, "/v1/admin/sweep", a.token(1, domain.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["holds_expired"])
}
