package router

import (
	"net/http"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/handler"
	"github.com/iliyamo/segment-reservation/internal/middleware"
)

// RegisterBooking registers the passenger-facing endpoints: topology
// reads, availability, holds and tickets. Route stops are cached;
// availability never is.
func RegisterBooking(r *registrar, h *handler.Handler, opts Options) {
	cache := middleware.NewRedisCache(opts.Cache, opts.Redis)
	limit := middleware.NewTokenBucket(opts.RateLimit, opts.Redis)

	r.add(http.MethodGet, "/routes/:id/stops", domain.OpRouteStops, h.RouteStops, cache)
	r.add(http.MethodGet, "/trips/:id", domain.OpTripView, h.Trip)
	r.add(http.MethodGet, "/trips/:id/availability", domain.OpAvailability, h.Availability)

	r.add(http.MethodPost, "/trips/:id/holds", domain.OpHoldCreate, h.CreateHold, limit)
	r.add(http.MethodGet, "/holds/:id", domain.OpHoldRelease, h.Hold)
	r.add(http.MethodDelete, "/holds/:id", domain.OpHoldRelease, h.ReleaseHold)

	r.add(http.MethodPost, "/tickets", domain.OpTicketCreate, h.CreateTicket)
	r.add(http.MethodGet, "/tickets/qr/:code", domain.OpTicketLookupQR, h.TicketByQR)
	r.add(http.MethodGet, "/tickets/:id", domain.OpTicketView, h.Ticket)
	r.add(http.MethodGet, "/tickets/:id/qr.png", domain.OpTicketView, h.TicketQR)
	r.add(http.MethodPost, "/tickets/:id/confirm", domain.OpTicketConfirm, h.ConfirmPayment)
	r.add(http.MethodPost, "/tickets/:id/cancel", domain.OpTicketCancel, h.CancelTicket)
	r.add(http.MethodPost, "/tickets/:id/used", domain.OpTicketMarkUsed, h.MarkUsed)
	r.add(http.MethodPost, "/tickets/:id/no-show", domain.OpTicketMarkNoShow, h.MarkNoShow)
}
