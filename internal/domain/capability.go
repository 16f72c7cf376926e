package domain

import "fmt"

// Operation names one entry of the exposed operation surface.
type Operation string

const (
	OpAvailability Operation = "availability"
	OpRouteStops   Operation = "route.stops"
	OpTripView     Operation = "trip.view"

	OpHoldCreate  Operation = "hold.create"
	OpHoldRelease Operation = "hold.release"

	OpTicketCreate     Operation = "ticket.create"
	OpTicketConfirm    Operation = "ticket.confirm"
	OpTicketCancel     Operation = "ticket.cancel"
	OpTicketMarkUsed   Operation = "ticket.mark_used"
	OpTicketMarkNoShow Operation = "ticket.mark_no_show"
	OpTicketLookupQR   Operation = "ticket.lookup_qr"
	OpTicketView       Operation = "ticket.view"
	OpTripManifest     Operation = "trip.manifest"
	OpQuickSale        Operation = "quick_sale.sell"
	OpQuickSaleSeats   Operation = "quick_sale.seats"

	OpTripOpenBoarding  Operation = "trip.open_boarding"
	OpTripCloseBoarding Operation = "trip.close_boarding"
	OpTripDepart        Operation = "trip.depart"
	OpTripArrive        Operation = "trip.arrive"
	OpTripCancel        Operation = "trip.cancel"

	OpOverbookingRequest Operation = "overbooking.request"
	OpOverbookingSell    Operation = "overbooking.sell"
	OpOverbookingApprove Operation = "overbooking.approve"
	OpOverbookingReject  Operation = "overbooking.reject"
	OpOverbookingList    Operation = "overbooking.list"

	OpParcelCreate    Operation = "parcel.create"
	OpParcelInTransit Operation = "parcel.in_transit"
	OpParcelDeliver   Operation = "parcel.deliver"
	OpParcelFail      Operation = "parcel.mark_failed"
	OpParcelView      Operation = "parcel.view"

	OpMaintenanceSweep Operation = "maintenance.sweep"
)

var everyone = []Role{RolePassenger, RoleClerk, RoleDriver, RoleDispatcher, RoleAdmin}

// Capabilities maps every operation to the roles allowed to run it. An
// operation missing from the table is denied to everybody.
type Capabilities map[Operation]map[Role]bool

// DefaultCapabilities returns the production capability table.
func DefaultCapabilities() Capabilities {
	c := Capabilities{}
	c.allow(OpAvailability, everyone...)
	c.allow(OpRouteStops, everyone...)
	c.allow(OpTripView, everyone...)

	c.allow(OpHoldCreate, RolePassenger, RoleClerk, RoleAdmin)
	c.allow(OpHoldRelease, RolePassenger, RoleClerk, RoleAdmin)

	c.allow(OpTicketCreate, RolePassenger, RoleClerk, RoleAdmin)
	c.allow(OpTicketCancel, RolePassenger, RoleClerk, RoleAdmin)
	c.allow(OpTicketConfirm, RoleClerk, RoleAdmin)
	c.allow(OpTicketMarkUsed, RoleDriver, RoleClerk, RoleDispatcher)
	c.allow(OpTicketMarkNoShow, RoleDriver, RoleClerk, RoleDispatcher)
	c.allow(OpTicketLookupQR, RoleDriver, RoleClerk, RoleDispatcher)
	// passengers only see their own tickets; the handler filters
	c.allow(OpTicketView, everyone...)
	c.allow(OpTripManifest, RoleDriver, RoleClerk, RoleDispatcher, RoleAdmin)
	c.allow(OpQuickSale, RoleClerk, RoleDriver, RoleAdmin)
	c.allow(OpQuickSaleSeats, RoleClerk, RoleDriver, RoleDispatcher, RoleAdmin)

	c.allow(OpTripOpenBoarding, RoleDriver, RoleDispatcher, RoleAdmin)
	c.allow(OpTripCloseBoarding, RoleDriver, RoleDispatcher, RoleAdmin)
	c.allow(OpTripDepart, RoleDriver, RoleDispatcher, RoleAdmin)
	c.allow(OpTripArrive, RoleDriver, RoleDispatcher, RoleAdmin)
	c.allow(OpTripCancel, RoleDispatcher, RoleAdmin)

	c.allow(OpOverbookingRequest, RoleClerk, RoleDispatcher)
	c.allow(OpOverbookingSell, RoleClerk, RoleDispatcher)
	c.allow(OpOverbookingApprove, RoleDispatcher, RoleAdmin)
	c.allow(OpOverbookingReject, RoleDispatcher, RoleAdmin)
	c.allow(OpOverbookingList, RoleDispatcher, RoleAdmin)

	c.allow(OpParcelCreate, RoleClerk, RoleDispatcher, RoleAdmin)
	c.allow(OpParcelInTransit, RoleClerk, RoleDispatcher, RoleAdmin)
	c.allow(OpParcelDeliver, RoleDriver, RoleClerk)
	c.allow(OpParcelFail, RoleDriver, RoleClerk)
	c.allow(OpParcelView, RoleDriver, RoleClerk, RoleDispatcher, RoleAdmin)

	c.allow(OpMaintenanceSweep, RoleAdmin)
	return c
}

func (c Capabilities) allow(op Operation, roles ...Role) {
	set, ok := c[op]
	if !ok {
		set = make(map[Role]bool, len(roles))
		c[op] = set
	}
	for _, r := range roles {
		set[r] = true
	}
}

// Allowed reports whether role may run op.
func (c Capabilities) Allowed(op Operation, role Role) bool {
	return c[op][role]
}

// Authorize returns ErrForbidden unless rc's role may run op.
func (c Capabilities) Authorize(rc RequestContext, op Operation) error {
	if !c.Allowed(op, rc.Role) {
		return fmt.Errorf("%w: role %q cannot run %s", ErrForbidden, rc.Role, op)
	}
	return nil
}
