package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/rental-markup/internal/config"
	"github.com/iliyamo/rental-markup/internal/logger"
)

// bucketScript refills and takes one token from the bucket at KEYS[1].
// It returns {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])
	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + intervals * refill_tokens)
			last_refill = last_refill + intervals * interval_ms
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)
	return { allowed, tokens, retry_after_ms }
`)

// bucketState is the decoded reply of bucketScript.
type bucketState struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

// NewTokenBucket limits requests with a token bucket kept in Redis.  The
// bucket is chosen by cfg.KeyStrategy (see buildRateKey) and updated
// atomically by a Lua script.  Redis failures fail open: the request is
// served and the error logged.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := int64(cfg.TTL / time.Second)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			reply, err := bucketScript.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(), ttl,
			).Int64Slice()
			if err != nil {
				logger.Warn("ratelimit redis error", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			if len(reply) != 3 {
				logger.Warn("ratelimit unexpected script result", zap.String("key", key), zap.Int64s("result", reply))
				return next(c)
			}
			st := bucketState{allowed: reply[0] == 1, remaining: reply[1], retry: time.Duration(reply[2]) * time.Millisecond}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(st.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if st.allowed {
				return next(c)
			}

			secs := int(math.Ceil(st.retry.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				logger.Debug("ratelimit block", zap.String("key", key), zap.Duration("retry", st.retry))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// buildRateKey names the bucket for c.  "route" uses the registered
// pattern, so every markup token shares one bucket; "path" uses the
// request URL, so each token gets its own.  Unknown strategies fall back
// to ip_user_route.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	dims := map[string][]string{
		"ip":    {"ip", ip},
		"user":  {"user", userID(c)},
		"route": {"route", c.Request().Method + " " + c.Path()},
		"path":  {"path", c.Request().Method + " " + c.Request().URL.Path},
	}

	var names []string
	switch strategy := strings.ToLower(cfg.KeyStrategy); strategy {
	case "ip", "user", "route", "path":
		names = []string{strategy}
	case "ip_user", "ip_route", "user_route", "ip_path":
		names = strings.SplitN(strategy, "_", 2)
	default:
		names = []string{"ip", "user", "route"}
	}

	parts := []string{cfg.Prefix}
	for _, n := range names {
		parts = append(parts, dims[n]...)
	}
	return strings.Join(parts, ":")
}
