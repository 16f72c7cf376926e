package model

import "time"

// ParcelStatus is the lifecycle state of a parcel.
type ParcelStatus string

const (
	ParcelCreated   ParcelStatus = "CREATED"
	ParcelInTransit ParcelStatus = "IN_TRANSIT"
	ParcelDelivered ParcelStatus = "DELIVERED"
	ParcelFailed    ParcelStatus = "FAILED"
)

// Parcel is a package carried on a trip and released only against its
// delivery OTP. OtpHash is a bcrypt hash; the plain OTP is never stored.
type Parcel struct {
	ID            uint64       `json:"id"`                       // parcels.id
	Code          string       `json:"code"`                     // parcels.code (unique)
	TripID        *uint64      `json:"trip_id,omitempty"`        // parcels.trip_id (nullable)
	Status        ParcelStatus `json:"status"`                   // parcels.status
	OtpHash       string       `json:"-"`                        // parcels.otp_hash
	ProofURL      string       `json:"proof_url,omitempty"`      // parcels.proof_url
	FailureReason string       `json:"failure_reason,omitempty"` // parcels.failure_reason
	DeliveredAt   *time.Time   `json:"delivered_at,omitempty"`   // parcels.delivered_at
	CreatedAt     time.Time    `json:"created_at"`               // parcels.created_at
	UpdatedAt     time.Time    `json:"updated_at"`               // parcels.updated_at
}
