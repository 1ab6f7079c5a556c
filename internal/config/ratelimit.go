package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig configures the Redis token buckets in front of the markup
// write endpoints and the public landing route.
//
// RATE_LIMIT_BURST and RATE_LIMIT_REFILL_EVERY are shorthands for Capacity
// and a one token refill per interval.  The landing route gets its own
// buckets (see Landing): its default "ip_path" strategy gives each visitor
// one bucket per shared markup token, so a link posted publicly cannot
// drain the budget of a host's other links.
type RateLimitConfig struct {
	Enabled            bool
	Capacity           int
	RefillTokens       int
	RefillInterval     time.Duration
	TTL                time.Duration
	KeyStrategy        string
	LandingKeyStrategy string
	Prefix             string
	Debug              bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and clamps them to usable
// minimums.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:            envBool("RATE_LIMIT_ENABLED", true),
		Capacity:           envInt("RATE_LIMIT_CAPACITY", 30),
		RefillTokens:       envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval:     envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:                envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:        envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		LandingKeyStrategy: envStr("RATE_LIMIT_LANDING_KEY_STRATEGY", "ip_path"),
		Prefix:             envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:              envBool("RATE_LIMIT_DEBUG", false),
	}
	if burst := envInt("RATE_LIMIT_BURST", -1); burst > 0 {
		cfg.Capacity = burst
	}
	if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		cfg.RefillTokens = 1
		cfg.RefillInterval = every
	}
	cfg.Capacity = max(cfg.Capacity, 1)
	cfg.RefillTokens = max(cfg.RefillTokens, 1)
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// A bucket must outlive a few refills or it resets to full capacity.
	cfg.TTL = max(cfg.TTL, 5*cfg.RefillInterval)
	return cfg
}

// Landing returns a copy of cfg keyed for the landing route.  Its buckets
// live under their own prefix.
func (cfg RateLimitConfig) Landing() RateLimitConfig {
	cfg.KeyStrategy = cfg.LandingKeyStrategy
	cfg.Prefix += ":landing"
	return cfg
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
