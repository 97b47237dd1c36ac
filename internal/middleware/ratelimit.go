package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// rateBucket tracks request counts per client within a time window
type rateBucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter provides fixed-window per-client rate limiting
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*rateBucket
	limit    int
	window   time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter: max limit requests per window per client
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*rateBucket),
		limit:    limit,
		window:   window,
		stopChan: make(chan struct{}),
	}
	// Drop expired buckets every minute
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rl.stopChan:
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
	return rl
}

// Stop halts the background bucket cleanup
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, ip)
		}
	}
}

// allow records one request and reports whether it is under the
// limit, together with the seconds until the window resets
func (rl *RateLimiter) allow(client string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[client]
	if !ok || now.After(b.resetAt) {
		b = &rateBucket{resetAt: now.Add(rl.window)}
		rl.buckets[client] = b
	}

	b.count++
	retryAfter := int(time.Until(b.resetAt).Seconds()) + 1
	return b.count <= rl.limit, retryAfter
}

// Handler returns the Fiber middleware enforcing the limit
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, retryAfter := rl.allow(c.IP())
		if !ok {
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":      "Too many requests",
				"message":    "Rate limit exceeded. Please try again later.",
				"retryAfter": retryAfter,
			})
		}
		return c.Next()
	}
}
