package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = time.Hour
	limiterSweepTick = 5 * time.Minute
)

// LimitExceeded 被限流时的响应体
type LimitExceeded func(c *gin.Context)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

func (s *limiterStore) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// 空闲超过一小时的客户端在访问时顺带清理
	if now.Sub(s.lastSweep) >= limiterSweepTick {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimit 按客户端IP的令牌桶限流, rps<=0时不限流
func RateLimit(rps float64, burst int, onLimit LimitExceeded) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	store := &limiterStore{
		rps:     rate.Limit(rps),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}

	return func(c *gin.Context) {
		if !store.get(c.ClientIP()).Allow() {
			if onLimit != nil {
				onLimit(c)
			} else {
				c.AbortWithStatus(http.StatusTooManyRequests)
			}
			c.Abort()
			return
		}
		c.Next()
	}
}
