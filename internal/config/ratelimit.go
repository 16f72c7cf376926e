package config

import "time"

// RateLimitConfig configures the Redis token bucket placed in front of the
// mutating reservation endpoints (holds, over-capacity sales, parcel
// delivery). Strategy picks which request attributes form the bucket key.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool

	// OTP attempts get their own, stricter bucket.
	OtpCapacity       int
	OtpRefillInterval time.Duration
}

func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:           envBool("RATE_LIMIT_ENABLED", true),
		Capacity:          envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:      envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval:    envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:               envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:       envStr("RATE_LIMIT_KEY_STRATEGY", "user_route"),
		Prefix:            envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:             envBool("RATE_LIMIT_DEBUG", false),
		OtpCapacity:       envInt("RATE_LIMIT_OTP_CAPACITY", 5),
		OtpRefillInterval: envDur("RATE_LIMIT_OTP_REFILL_INTERVAL", time.Minute),
	}
	return cfg.normalized()
}

// normalized clamps values so the Lua script never sees zero intervals.
func (cfg RateLimitConfig) normalized() RateLimitConfig {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	if cfg.OtpCapacity < 1 {
		cfg.OtpCapacity = 1
	}
	if cfg.OtpRefillInterval <= 0 {
		cfg.OtpRefillInterval = time.Minute
	}
	return cfg
}

// ForOtp derives the bucket used on parcel delivery attempts.
func (cfg RateLimitConfig) ForOtp() RateLimitConfig {
	out := cfg
	out.Capacity = cfg.OtpCapacity
	out.RefillTokens = 1
	out.RefillInterval = cfg.OtpRefillInterval
	out.Prefix = cfg.Prefix + ":otp"
	out.KeyStrategy = "user_route"
	return out.normalized()
}
