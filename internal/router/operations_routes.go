package router

import (
	"net/http"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/handler"
	"github.com/iliyamo/segment-reservation/internal/middleware"
)

// RegisterOperations registers staff endpoints: trip lifecycle, quick
// sale, overbooking, parcels and maintenance. Delivery attempts share a strict
// per-user bucket so OTPs cannot be guessed.
func RegisterOperations(r *registrar, h *handler.Handler, opts Options) {
	limit := middleware.NewTokenBucket(opts.RateLimit, opts.Redis)
	otpLimit := middleware.NewTokenBucket(opts.RateLimit.ForOtp(), opts.Redis)

	r.add(http.MethodGet, "/trips/:id/tickets", domain.OpTripManifest, h.TripTickets)
	r.add(http.MethodPost, "/trips/:id/open-boarding", domain.OpTripOpenBoarding, h.OpenBoarding)
	r.add(http.MethodPost, "/trips/:id/close-boarding", domain.OpTripCloseBoarding, h.CloseBoarding)
	r.add(http.MethodPost, "/trips/:id/depart", domain.OpTripDepart, h.Depart)
	r.add(http.MethodPost, "/trips/:id/arrive", domain.OpTripArrive, h.Arrive)
	r.add(http.MethodPost, "/trips/:id/cancel", domain.OpTripCancel, h.CancelTrip)

	r.add(http.MethodGet, "/trips/:id/quick-sale", domain.OpQuickSaleSeats, h.QuickSaleSeats)
	r.add(http.MethodPost, "/trips/:id/quick-sale", domain.OpQuickSale, h.QuickSale, limit)

	r.add(http.MethodGet, "/trips/:id/occupancy", domain.OpOverbookingList, h.Occupancy)
	r.add(http.MethodPost, "/trips/:id/overbookings", domain.OpOverbookingRequest, h.RequestOverbooking)
	r.add(http.MethodPost, "/trips/:id/overbookings/sell", domain.OpOverbookingSell, h.SellOverCapacity, limit)
	r.add(http.MethodGet, "/overbookings", domain.OpOverbookingList, h.ListOverbookings)
	r.add(http.MethodGet, "/overbookings/:id", domain.OpOverbookingList, h.Overbooking)
	r.add(http.MethodPost, "/overbookings/:id/approve", domain.OpOverbookingApprove, h.ApproveOverbooking)
	r.add(http.MethodPost, "/overbookings/:id/reject", domain.OpOverbookingReject, h.RejectOverbooking)

	r.add(http.MethodPost, "/parcels", domain.OpParcelCreate, h.CreateParcel)
	r.add(http.MethodGet, "/parcels/:code", domain.OpParcelView, h.Parcel)
	r.add(http.MethodPost, "/parcels/:code/in-transit", domain.OpParcelInTransit, h.ParcelInTransit)
	r.add(http.MethodPost, "/parcels/:code/deliver", domain.OpParcelDeliver, h.DeliverParcel, otpLimit)
	r.add(http.MethodPost, "/parcels/:code/fail", domain.OpParcelFail, h.FailParcel)

	r.add(http.MethodPost, "/admin/sweep", domain.OpMaintenanceSweep, h.Sweep)
}
