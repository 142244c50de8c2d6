// README: Per-caller token bucket limiter for polling endpoints.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const idleAfter = 3 * time.Minute

type CallerLimiter struct {
	mu        sync.Mutex
	callers   map[string]*visitor
	r         rate.Limit
	b         int
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewCallerLimiter(perSecond float64, burst int) *CallerLimiter {
	return &CallerLimiter{
		callers: make(map[string]*visitor),
		r:       rate.Limit(perSecond),
		b:       burst,
	}
}

// Allow reports whether key may make another request at now. Idle callers
// are dropped lazily so the map does not grow without bound.
func (l *CallerLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > idleAfter {
		for k, v := range l.callers {
			if now.Sub(v.lastSeen) > idleAfter {
				delete(l.callers, k)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.callers[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.r, l.b)}
		l.callers[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimit keys on the authenticated caller, falling back to the client IP.
// It must run after Auth.
func RateLimit(l *CallerLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := CallerUID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !l.Allow(key, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
