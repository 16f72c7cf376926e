package model

import "time"

// OverbookingStatus is the lifecycle state of an overbooking request.
type OverbookingStatus string

const (
	OverbookingRequestPending  OverbookingStatus = "PENDING"
	OverbookingRequestApproved OverbookingStatus = "APPROVED"
	OverbookingRequestRejected OverbookingStatus = "REJECTED"
	OverbookingRequestExpired  OverbookingStatus = "EXPIRED"
)

// OverbookingRequest asks a dispatcher to sanction one ticket beyond the
// nominal capacity of its trip.
type OverbookingRequest struct {
	ID          uint64            `json:"id"`                    // overbooking_requests.id
	TripID      uint64            `json:"trip_id"`               // overbooking_requests.trip_id
	TicketID    uint64            `json:"ticket_id"`             // overbooking_requests.ticket_id
	Status      OverbookingStatus `json:"status"`                // overbooking_requests.status
	Reason      string            `json:"reason"`                // overbooking_requests.reason
	Notes       string            `json:"notes,omitempty"`       // overbooking_requests.notes
	RequestedBy uint64            `json:"requested_by"`          // overbooking_requests.requested_by
	ResolvedBy  *uint64           `json:"resolved_by,omitempty"` // overbooking_requests.resolved_by
	RequestedAt time.Time         `json:"requested_at"`          // overbooking_requests.requested_at
	ExpiresAt   time.Time         `json:"expires_at"`            // overbooking_requests.expires_at
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"` // overbooking_requests.resolved_at
}
