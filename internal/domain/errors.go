// Package domain holds the vocabulary shared by every layer of the
// reservation engine: error kinds, the verified request identity and the
// capability table that decides which role may run which operation.
//
// Errors are sentinel values. Callers add context with fmt.Errorf and %w and
// test the kind with errors.Is; the HTTP layer maps each kind to a status
// code in one place.
package domain

import "errors"

// ErrInvalidSegment is returned when a requested ordinal range is malformed,
// i.e. fromOrdinal is not strictly less than toOrdinal.
var ErrInvalidSegment = errors.New("invalid segment")

// ErrSegmentConflict is returned when a hold or ticket would overlap an
// existing ACTIVE hold or PENDING_PAYMENT/SOLD ticket on the same seat. It is
// also what a write surfaces after losing a bounded number of lock races.
var ErrSegmentConflict = errors.New("segment conflict")

// ErrHoldExpired is returned when a hold is converted after its expires_at.
var ErrHoldExpired = errors.New("hold expired")

// ErrHoldNotFound is returned for unknown holds and for holds that are no
// longer ACTIVE at conversion time.
var ErrHoldNotFound = errors.New("hold not found")

// ErrTripNotBookable is returned when the trip status does not allow the
// requested seat operation.
var ErrTripNotBookable = errors.New("trip not bookable")

// ErrInvalidStateTransition is returned when a ticket, trip, parcel or
// overbooking guard fails. State is left untouched.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ErrCapacityExceeded signals that the requested segment is saturated on
// every seat. Callers route it to the overbooking workflow.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrCapacityAvailable is returned when an over-capacity sale is attempted on
// a segment that still has a free seat.
var ErrCapacityAvailable = errors.New("capacity available")

// ErrOverbookingNotAllowed is returned when the overbooking policy (window,
// occupancy threshold or per-trip limit) rejects a request.
var ErrOverbookingNotAllowed = errors.New("overbooking not allowed")

// ErrOtpMismatch is returned when a delivery OTP does not match.
var ErrOtpMismatch = errors.New("otp mismatch")

var (
	ErrUnknownStop  = errors.New("unknown stop")
	ErrUnknownBus   = errors.New("unknown bus")
	ErrUnknownSeat  = errors.New("unknown seat")
	ErrUnknownTrip  = errors.New("unknown trip")
	ErrUnknownRoute = errors.New("unknown route")
	ErrTripHasNoBus = errors.New("trip has no bus")

	ErrTicketNotFound      = errors.New("ticket not found")
	ErrParcelNotFound      = errors.New("parcel not found")
	ErrOverbookingNotFound = errors.New("overbooking request not found")
	ErrParcelExists        = errors.New("parcel code already exists")
)

// ErrInvalidRequest is returned for malformed input that is not a segment,
// such as an unknown payment method or an empty parcel code.
var ErrInvalidRequest = errors.New("invalid request")

// ErrWriteConflict marks a lost race on an atomic write (deadlock, lock wait
// timeout, compare-and-swap miss). It is retried internally and never
// reaches callers.
var ErrWriteConflict = errors.New("write conflict")

// ErrForbidden is returned by the authorization gate when the caller's role
// is not listed for the operation.
var ErrForbidden = errors.New("forbidden")
