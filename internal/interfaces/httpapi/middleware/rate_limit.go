package middleware

import (
	"net/http"
	"strconv"
	"time"

	"persona-gateway/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// tokenBucket refills at ARGV[2] tokens per second up to ARGV[1] and takes
// ARGV[4] tokens if available. Returns {allowed, remaining, retry_after}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

local elapsed = math.max(0, now - updated_at)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local retry_after = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = (requested - tokens) / rate
end

redis.call('HMSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, 86400)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`)

// RateLimit applies a per-client-IP token bucket of 2*qps capacity. Redis
// failures let the request through.
func RateLimit(client *redis.Client, qps int) gin.HandlerFunc {
	capacity := 2 * qps
	return func(c *gin.Context) {
		key := "rate_limit:" + c.ClientIP()
		now := float64(time.Now().UnixNano()) / 1e9

		result, err := tokenBucket.Run(c.Request.Context(), client, []string{key}, capacity, qps, now, 1).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		allowed, remaining, retryAfter := int64(0), int64(capacity), int64(0)
		if arr, ok := result.([]any); ok && len(arr) >= 3 {
			allowed, _ = arr[0].(int64)
			remaining, _ = arr[1].(int64)
			retryAfter, _ = arr[2].(int64)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(capacity))
		if allowed == 0 {
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Too many requests, slow down"})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Next()
	}
}
