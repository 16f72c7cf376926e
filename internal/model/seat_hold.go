package model

import "time"

// HoldStatus is the lifecycle state of a seat hold.
type HoldStatus string

const (
	HoldActive    HoldStatus = "ACTIVE"
	HoldExpired   HoldStatus = "EXPIRED"
	HoldReleased  HoldStatus = "RELEASED"
	HoldConverted HoldStatus = "CONVERTED"
)

// SeatHold represents a temporary, exclusive hold of one seat for one
// segment while the holder completes the purchase. Only ACTIVE holds
// take part in overlap checks; an ACTIVE hold whose ExpiresAt has passed is
// treated as expired by every reader.
//
// Fields:
//  ID        – primary key identifier.
//  HoldToken – opaque token returned to the client for correlation.
//  UserID    – actor that requested the hold.
//  ExpiresAt – CreatedAt plus the policy TTL.
type SeatHold struct {
	ID          uint64     `json:"id"`           // seat_holds.id
	HoldToken   string     `json:"hold_token"`   // seat_holds.hold_token
	TripID      uint64     `json:"trip_id"`      // seat_holds.trip_id
	SeatNumber  string     `json:"seat_number"`  // seat_holds.seat_number
	FromOrdinal int        `json:"from_ordinal"` // seat_holds.from_ordinal
	ToOrdinal   int        `json:"to_ordinal"`   // seat_holds.to_ordinal
	UserID      uint64     `json:"user_id"`      // seat_holds.user_id
	Status      HoldStatus `json:"status"`       // seat_holds.status
	ExpiresAt   time.Time  `json:"expires_at"`   // seat_holds.expires_at
	CreatedAt   time.Time  `json:"created_at"`   // seat_holds.created_at
	UpdatedAt   time.Time  `json:"updated_at"`   // seat_holds.updated_at
}

// Segment returns the hold's ordinal range.
func (h SeatHold) Segment() Segment { return Segment{From: h.FromOrdinal, To: h.ToOrdinal} }

// Live reports whether the hold still blocks its segment at now.
func (h SeatHold) Live(now time.Time) bool {
	return h.Status == HoldActive && now.Before(h.ExpiresAt)
}
