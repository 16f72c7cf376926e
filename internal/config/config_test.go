package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadReservationPolicyDefaults(t *testing.T) {
	p := LoadReservationPolicy()
	assert.Equal(t, DefaultReservationPolicy(), p)
}

func TestLoadReservationPolicyOverrides(t *testing.T) {
	t.Setenv("HOLD_TTL", "3m")
	t.Setenv("OVERBOOKING_OCCUPANCY_THRESHOLD", "0.8")
	t.Setenv("OVERBOOKING_WINDOW", "45m")
	t.Setenv("CONFLICT_MAX_RETRIES", "-2")

	p := LoadReservationPolicy()
	assert.Equal(t, 3*time.Minute, p.HoldTTL)
	assert.InDelta(t, 0.8, p.OverbookingThreshold, 1e-9)
	assert.Equal(t, 45*time.Minute, p.OverbookingWindow)
	assert.Equal(t, 0, p.MaxConflictRetries)
}

func TestLoadReservationPolicyRejectsNegativeCents(t *testing.T) {
	t.Setenv("DEFAULT_FARE_CENTS", "-1")
	t.Setenv("NO_SHOW_FEE_CENTS", "-5000")
	p := LoadReservationPolicy()
	assert.EqualValues(t, 50000, p.DefaultFareCents)
	assert.EqualValues(t, 5000, p.NoShowFeeCents)

	t.Setenv("DEFAULT_FARE_CENTS", "0")
	t.Setenv("NO_SHOW_FEE_CENTS", "2500")
	p = LoadReservationPolicy()
	assert.Zero(t, p.DefaultFareCents)
	assert.EqualValues(t, 2500, p.NoShowFeeCents)
}

func TestLoadReservationPolicyWindowsInMinutes(t *testing.T) {
	t.Setenv("NO_SHOW_WINDOW_MINUTES", "3")
	t.Setenv("QUICK_SALE_WINDOW_MINUTES", "15")
	t.Setenv("QUICK_SALE_DISCOUNT_PERCENT", "150")
	p := LoadReservationPolicy()
	assert.Equal(t, 3*time.Minute, p.NoShowWindow)
	assert.Equal(t, 15*time.Minute, p.QuickSaleWindow)
	assert.Equal(t, 20, p.QuickSaleDiscountPercent)

	t.Setenv("NO_SHOW_WINDOW_MINUTES", "-4")
	assert.Equal(t, 5*time.Minute, LoadReservationPolicy().NoShowWindow)
}

func TestLoadReservationPolicyRejectsBadThreshold(t *testing.T) {
	t.Setenv("OVERBOOKING_OCCUPANCY_THRESHOLD", "1.5")
	t.Setenv("HOLD_TTL", "-1m")
	p := LoadReservationPolicy()
	assert.InDelta(t, 0.95, p.OverbookingThreshold, 1e-9)
	assert.Equal(t, 10*time.Minute, p.HoldTTL)
}

func TestRateLimitForOtp(t *testing.T) {
	t.Setenv("RATE_LIMIT_OTP_CAPACITY", "3")
	cfg := LoadRateLimitConfig()
	otp := cfg.ForOtp()
	assert.Equal(t, 3, otp.Capacity)
	assert.Equal(t, "rl:otp", otp.Prefix)
	assert.Equal(t, time.Minute, otp.RefillInterval)
	assert.GreaterOrEqual(t, otp.TTL, 5*time.Minute)
}

func TestLoadNotifyConfig(t *testing.T) {
	t.Setenv("NOTIFY_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@broker:5672/")
	cfg := LoadNotifyConfig()
	assert.Equal(t, NotifyKafka, cfg.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "amqp://u:p@broker:5672/", cfg.RabbitURL)
	assert.Equal(t, "reservation.events", cfg.KafkaTopic)
}

func TestLoadCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
}
