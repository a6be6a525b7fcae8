package middleware

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RateLimiter enforces a per-user token bucket on message sending, with a
// small random jitter to avoid burst patterns toward the gateway.
type RateLimiter struct {
	limits        map[int64]*userLimit
	mu            sync.RWMutex
	perMinute     int
	jitterMinMS   int
	jitterMaxMS   int
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
}

type userLimit struct {
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
}

func NewRateLimiter(perMinute, jitterMinMS, jitterMaxMS int) *RateLimiter {
	rl := &RateLimiter{
		limits:      make(map[int64]*userLimit),
		perMinute:   perMinute,
		jitterMinMS: jitterMinMS,
		jitterMaxMS: jitterMaxMS,
		stopChan:    make(chan struct{}),
	}

	rl.cleanupTicker = time.NewTicker(10 * time.Minute)
	go rl.cleanup()

	log.Info().
		Int("per_minute", perMinute).
		Int("jitter_min_ms", jitterMinMS).
		Int("jitter_max_ms", jitterMaxMS).
		Msg("Rate limiter initialized")

	return rl
}

// Limit must run after UserAuth so the user identity is available.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":      "unauthenticated",
				"message":    "rate limiting requires an authenticated user",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		if !rl.allow(userID) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many messages sent. Please wait before sending more.",
				"retry_after": 60,
				"request_id":  c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		if jitter := rl.getJitter(); jitter > 0 {
			time.Sleep(jitter)
		}

		c.Next()
	}
}

func (rl *RateLimiter) allow(userID int64) bool {
	rl.mu.RLock()
	limit, exists := rl.limits[userID]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		limit, exists = rl.limits[userID]
		if !exists {
			limit = &userLimit{
				tokens:     rl.perMinute,
				lastRefill: time.Now(),
			}
			rl.limits[userID] = limit
		}
		rl.mu.Unlock()
	}

	limit.mu.Lock()
	defer limit.mu.Unlock()

	now := time.Now()
	if now.Sub(limit.lastRefill) >= time.Minute {
		limit.tokens = rl.perMinute
		limit.lastRefill = now
	}

	if limit.tokens > 0 {
		limit.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) getJitter() time.Duration {
	if rl.jitterMinMS == 0 && rl.jitterMaxMS == 0 {
		return 0
	}

	jitterRange := rl.jitterMaxMS - rl.jitterMinMS
	if jitterRange <= 0 {
		return time.Duration(rl.jitterMinMS) * time.Millisecond
	}

	jitter := rl.jitterMinMS + rand.Intn(jitterRange)
	return time.Duration(jitter) * time.Millisecond
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.performCleanup()
		case <-rl.stopChan:
			rl.cleanupTicker.Stop()
			return
		}
	}
}

func (rl *RateLimiter) performCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := time.Now().Add(-10 * time.Minute)
	cleaned := 0

	for userID, limit := range rl.limits {
		limit.mu.Lock()
		if limit.lastRefill.Before(threshold) {
			delete(rl.limits, userID)
			cleaned++
		}
		limit.mu.Unlock()
	}

	if cleaned > 0 {
		log.Debug().
			Int("cleaned", cleaned).
			Int("remaining", len(rl.limits)).
			Msg("Rate limiter cleanup completed")
	}
}

func (rl *RateLimiter) Stop() {
	close(rl.stopChan)
}
