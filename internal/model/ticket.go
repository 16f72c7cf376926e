package model

import "time"

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketPendingPayment TicketStatus = "PENDING_PAYMENT"
	TicketSold           TicketStatus = "SOLD"
	TicketCancelled      TicketStatus = "CANCELLED"
	TicketNoShow         TicketStatus = "NO_SHOW"
	TicketUsed           TicketStatus = "USED"
)

// Live reports whether the ticket still occupies its segment.
func (s TicketStatus) Live() bool {
	return s == TicketPendingPayment || s == TicketSold
}

// PaymentMethod is how a ticket is paid for.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentQR       PaymentMethod = "QR"
	PaymentCard     PaymentMethod = "CARD"
)

// Settled reports whether the method is already settled at sale time, in
// which case the ticket is issued SOLD instead of PENDING_PAYMENT.
func (m PaymentMethod) Settled() bool { return m == PaymentCard }

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentQR, PaymentCard:
		return true
	}
	return false
}

// OverbookingTag marks a ticket that breaches nominal capacity. Tagged
// tickets are excluded from the seat overlap invariant.
type OverbookingTag string

const (
	OverbookingNone     OverbookingTag = ""
	OverbookingPending  OverbookingTag = "PENDING"
	OverbookingApproved OverbookingTag = "APPROVED"
)

// Ticket is a seat sold (or pending payment) for one segment of a trip.
type Ticket struct {
	ID             uint64         `json:"id"`                          // tickets.id
	TripID         uint64         `json:"trip_id"`                     // tickets.trip_id
	SeatNumber     string         `json:"seat_number"`                 // tickets.seat_number
	FromOrdinal    int            `json:"from_ordinal"`                // tickets.from_ordinal
	ToOrdinal      int            `json:"to_ordinal"`                  // tickets.to_ordinal
	PassengerID    uint64         `json:"passenger_id"`                // tickets.passenger_id
	HoldID         *uint64        `json:"hold_id,omitempty"`           // tickets.hold_id (nil for over-capacity sales)
	PriceCents     uint32         `json:"price_cents"`                 // tickets.price_cents
	PaymentMethod  PaymentMethod  `json:"payment_method"`              // tickets.payment_method
	Status         TicketStatus   `json:"status"`                      // tickets.status
	Overbooking    OverbookingTag `json:"overbooking,omitempty"`       // tickets.overbooking
	QRCode         string         `json:"qr_code"`                     // tickets.qr_code
	RefundCents    uint32         `json:"refund_cents"`                // tickets.refund_cents
	NoShowFeeCents uint32         `json:"no_show_fee_cents"`           // tickets.no_show_fee_cents
	CancelReason   string         `json:"cancel_reason,omitempty"`     // tickets.cancel_reason
	CreatedAt      time.Time      `json:"created_at"`                  // tickets.created_at
	UpdatedAt      time.Time      `json:"updated_at"`                  // tickets.updated_at
}

// Segment returns the ticket's ordinal range.
func (t Ticket) Segment() Segment { return Segment{From: t.FromOrdinal, To: t.ToOrdinal} }

// Blocking reports whether the ticket takes part in the overlap invariant.
func (t Ticket) Blocking() bool {
	return t.Status.Live() && t.Overbooking == OverbookingNone
}
