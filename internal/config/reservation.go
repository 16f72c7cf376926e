package config

import "time"

// ReservationPolicy groups the externally configured parameters of the
// engine. None of these values are hard-coded in the service layer.
type ReservationPolicy struct {
	HoldTTL            time.Duration // lifetime of every hold, independent of the caller
	MaxConflictRetries int           // lost lock races retried before surfacing a conflict

	OverbookingThreshold     float64       // occupancy rate (0..1) required before overbooking
	OverbookingWindow        time.Duration // overbooking only within this distance of departure
	OverbookingMaxPercentage float64       // extra seats allowed, as a percentage of capacity
	OverbookingCutoff        time.Duration // requests expire this long before departure

	DefaultFareCents     uint32        // used when no fare rule matches
	RefundFullBefore     time.Duration // full refund when cancelled at least this early
	RefundPartialBefore  time.Duration // partial refund when cancelled at least this early
	RefundPartialPercent int           // percentage refunded in the partial window
	NoShowFeeCents       uint32        // minimum no-show fee
	NoShowFeePercent     int           // no-show fee as a percentage of price
	NoShowWindow         time.Duration // SOLD tickets of a BOARDING trip become NO_SHOW this close to departure

	QuickSaleWindow          time.Duration // clerk quick sale opens this long before departure
	QuickSaleDiscountPercent int           // optional quick-sale discount off the fare

	BoardingLead  time.Duration // auto-status opens boarding this long before departure
	HoldRetention time.Duration // terminal holds older than this are purged
}

// DefaultReservationPolicy returns the policy used when no variables are set.
func DefaultReservationPolicy() ReservationPolicy {
	return ReservationPolicy{
		HoldTTL:                  10 * time.Minute,
		MaxConflictRetries:       3,
		OverbookingThreshold:     0.95,
		OverbookingWindow:        30 * time.Minute,
		OverbookingMaxPercentage: 5,
		OverbookingCutoff:        5 * time.Minute,
		DefaultFareCents:         50000,
		RefundFullBefore:         24 * time.Hour,
		RefundPartialBefore:      12 * time.Hour,
		RefundPartialPercent:     50,
		NoShowFeeCents:           5000,
		NoShowFeePercent:         10,
		NoShowWindow:             5 * time.Minute,
		QuickSaleWindow:          10 * time.Minute,
		QuickSaleDiscountPercent: 20,
		BoardingLead:             30 * time.Minute,
		HoldRetention:            7 * 24 * time.Hour,
	}
}

// LoadReservationPolicy overlays environment variables on the defaults.
func LoadReservationPolicy() ReservationPolicy {
	d := DefaultReservationPolicy()
	p := ReservationPolicy{
		HoldTTL:                  envDur("HOLD_TTL", d.HoldTTL),
		MaxConflictRetries:       envInt("CONFLICT_MAX_RETRIES", d.MaxConflictRetries),
		OverbookingThreshold:     envFloat("OVERBOOKING_OCCUPANCY_THRESHOLD", d.OverbookingThreshold),
		OverbookingWindow:        envDur("OVERBOOKING_WINDOW", d.OverbookingWindow),
		OverbookingMaxPercentage: envFloat("OVERBOOKING_MAX_PERCENTAGE", d.OverbookingMaxPercentage),
		OverbookingCutoff:        envDur("OVERBOOKING_REQUEST_CUTOFF", d.OverbookingCutoff),
		DefaultFareCents:         envCents("DEFAULT_FARE_CENTS", d.DefaultFareCents),
		RefundFullBefore:         envDur("REFUND_FULL_BEFORE", d.RefundFullBefore),
		RefundPartialBefore:      envDur("REFUND_PARTIAL_BEFORE", d.RefundPartialBefore),
		RefundPartialPercent:     envInt("REFUND_PARTIAL_PERCENT", d.RefundPartialPercent),
		NoShowFeeCents:           envCents("NO_SHOW_FEE_CENTS", d.NoShowFeeCents),
		NoShowFeePercent:         envInt("NO_SHOW_FEE_PERCENT", d.NoShowFeePercent),
		NoShowWindow:             envMinutes("NO_SHOW_WINDOW_MINUTES", d.NoShowWindow),
		QuickSaleWindow:          envMinutes("QUICK_SALE_WINDOW_MINUTES", d.QuickSaleWindow),
		QuickSaleDiscountPercent: envInt("QUICK_SALE_DISCOUNT_PERCENT", d.QuickSaleDiscountPercent),
		BoardingLead:             envDur("BOARDING_LEAD", d.BoardingLead),
		HoldRetention:            envDur("HOLD_RETENTION", d.HoldRetention),
	}
	if p.HoldTTL <= 0 {
		p.HoldTTL = d.HoldTTL
	}
	if p.MaxConflictRetries < 0 {
		p.MaxConflictRetries = 0
	}
	if p.OverbookingThreshold < 0 || p.OverbookingThreshold > 1 {
		p.OverbookingThreshold = d.OverbookingThreshold
	}
	if p.NoShowWindow < 0 {
		p.NoShowWindow = d.NoShowWindow
	}
	if p.QuickSaleWindow < 0 {
		p.QuickSaleWindow = d.QuickSaleWindow
	}
	if p.QuickSaleDiscountPercent < 0 || p.QuickSaleDiscountPercent > 100 {
		p.QuickSaleDiscountPercent = d.QuickSaleDiscountPercent
	}
	return p
}

// SchedulerConfig controls the idle sweeps.
type SchedulerConfig struct {
	HoldsEvery       time.Duration
	OverbookingEvery time.Duration
	TripsEvery       time.Duration
	CleanupEvery     time.Duration
	NoShowsEvery     time.Duration
	AutoTripStatus   bool // move trips to BOARDING/DEPARTED by the clock
}

// LoadSchedulerConfig reads SWEEP_* variables.
func LoadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		HoldsEvery:       envDur("SWEEP_HOLDS_EVERY", time.Minute),
		OverbookingEvery: envDur("SWEEP_OVERBOOKING_EVERY", time.Minute),
		TripsEvery:       envDur("SWEEP_TRIPS_EVERY", time.Minute),
		CleanupEvery:     envDur("SWEEP_CLEANUP_EVERY", 24*time.Hour),
		NoShowsEvery:     envDur("SWEEP_NO_SHOWS_EVERY", 2*time.Minute),
		AutoTripStatus:   envBool("AUTO_TRIP_STATUS", false),
	}
}
