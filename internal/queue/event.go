// Package queue carries reservation events out of the engine. Events are
// handed to a Dispatcher, which buffers them and forwards them to a Sink
// (RabbitMQ, Kafka or the log) on its own goroutine, so publishing never
// blocks a reservation operation.
package queue

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	HoldCreated  = "hold.created"
	HoldReleased = "hold.released"
	HoldExpired  = "hold.expired"

	TicketCreated   = "ticket.created"
	TicketSold      = "ticket.sold"
	TicketCancelled = "ticket.cancelled"
	TicketUsed      = "ticket.used"
	TicketNoShow    = "ticket.no_show"

	TripStatusChanged = "trip.status_changed"
	TripCancelled     = "trip.cancelled"

	SeatAvailable = "seat.available"

	OverbookingRequested = "overbooking.requested"
	OverbookingApproved  = "overbooking.approved"
	OverbookingRejected  = "overbooking.rejected"
	OverbookingExpired   = "overbooking.expired"

	ParcelInTransit   = "parcel.in_transit"
	ParcelDelivered   = "parcel.delivered"
	ParcelFailed      = "parcel.failed"
	ParcelOtpMismatch = "parcel.otp_mismatch"
)

// Event is the single payload shape published for every type. Fields not
// relevant to a type are left zero and omitted from JSON.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	ActorID     uint64    `json:"actor_id,omitempty"`
	TripID      uint64    `json:"trip_id,omitempty"`
	SeatNumber  string    `json:"seat_number,omitempty"`
	FromOrdinal int       `json:"from_ordinal,omitempty"`
	ToOrdinal   int       `json:"to_ordinal,omitempty"`
	HoldID      uint64    `json:"hold_id,omitempty"`
	TicketID    uint64    `json:"ticket_id,omitempty"`
	RequestID   uint64    `json:"request_id,omitempty"`
	ParcelCode  string    `json:"parcel_code,omitempty"`
	Status      string    `json:"status,omitempty"`
	AmountCents uint32    `json:"amount_cents,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// NewEvent stamps a fresh ID and timestamp.
func NewEvent(typ string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC()}
}

// Key is the partition/routing key: events of one trip stay ordered.
func (e Event) Key() string {
	switch {
	case e.TripID != 0:
		return "trip-" + strconv.FormatUint(e.TripID, 10)
	case e.ParcelCode != "":
		return "parcel-" + e.ParcelCode
	default:
		return e.Type
	}
}
