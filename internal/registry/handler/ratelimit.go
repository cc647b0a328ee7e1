package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/credanchor/credanchor/internal/identity"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RatePolicy is the token-bucket shape applied to one caller class.
type RatePolicy struct {
	RPS   int
	Burst int
}

// RateLimiter returns a Gin middleware enforcing per-caller token-bucket
// rate limiting. Buckets are keyed by role and client IP so a burst of
// anonymous verification traffic cannot starve authenticated issuers.
// policies maps role name to its bucket shape; fallback applies to
// unauthenticated callers and roles with no explicit policy. Stale
// buckets are cleaned every 5 minutes.
func RateLimiter(policies map[string]RatePolicy, fallback RatePolicy) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*ipLimiter)

	// Background cleanup goroutine.
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			mu.Lock()
			for key, l := range limiters {
				if time.Since(l.lastSeen) > 10*time.Minute {
					delete(limiters, key)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		role := ""
		if p := identity.FromCtx(c); p != nil {
			role = p.Role
		}
		policy, ok := policies[role]
		if !ok {
			policy = fallback
		}
		key := role + "|" + c.ClientIP()

		mu.Lock()
		l, ok := limiters[key]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(policy.RPS), policy.Burst)}
			limiters[key] = l
		}
		l.lastSeen = time.Now()
		mu.Unlock()

		if !l.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
