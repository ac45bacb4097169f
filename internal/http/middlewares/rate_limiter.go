package middlewares

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// windowCounter counts hits of key in the current fixed window and reports
// when the window resets.
type windowCounter interface {
	hit(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// RateLimiter is a fixed window counter per key. Counts live in process
// memory, or in Redis when several API replicas share the limit.
type RateLimiter struct {
	limit   int64
	window  time.Duration
	counter windowCounter
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{limit: int64(limit), window: window, now: time.Now}
	rl.counter = &memoryCounter{buckets: make(map[string]*bucket), now: func() time.Time { return rl.now() }}
	return rl
}

// NewRedisRateLimiter shares counts through Redis under prefix.
func NewRedisRateLimiter(rdb redis.Scripter, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   int64(limit),
		window:  window,
		counter: &redisCounter{rdb: rdb, prefix: prefix},
		now:     time.Now,
	}
}

// RateLimiterMiddleware enforces the limit for a derived key. If the
// counter is unavailable the request is let through.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = clientIP(c)
		}

		n, resetIn, err := rl.counter.hit(c.Request.Context(), key, rl.window)
		if err == nil && n > rl.limit {
			c.Header("Retry-After", strconv.Itoa(int(resetIn.Round(time.Second).Seconds())))
			abortError(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.")
			return
		}
		c.Next()
	}
}

type bucket struct {
	count     int64
	windowEnd time.Time
}

type memoryCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func (m *memoryCounter) hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		if len(m.buckets) > 10_000 {
			for k, v := range m.buckets {
				if !now.Before(v.windowEnd) {
					delete(m.buckets, k)
				}
			}
		}
		b = &bucket{windowEnd: now.Add(window)}
		m.buckets[key] = b
	}

	b.count++
	return b.count, b.windowEnd.Sub(now), nil
}

// hitScript increments the key and starts its expiry on the first hit of a
// window, returning the count and the remaining milliseconds.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

type redisCounter struct {
	rdb    redis.Scripter
	prefix string
}

func (r *redisCounter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := hitScript.Run(ctx, r.rdb, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, redis.Nil
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// KeyByIP keys unauthenticated endpoints.
func KeyByIP(c *gin.Context) string {
	return "ip:" + clientIP(c)
}

// KeyByUserOrIP keys by the signed in user when there is one.
func KeyByUserOrIP(c *gin.Context) string {
	if id, ok := UserIDFromContext(c); ok {
		return "user:" + id
	}
	return KeyByIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		return host
	}
	return ip
}
