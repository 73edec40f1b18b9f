package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/aiagenz/billing/internal/handler"
)

const visitorTTL = 3 * time.Minute

// RateLimiter is a per-client-IP token bucket limiter.
type RateLimiter struct {
	name     string
	rate     rate.Limit
	burst    int
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
	stop     chan struct{}
	once     sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst. Close stops its cleanup loop.
func NewRateLimiter(name string, rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		name:     name,
		rate:     rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop(time.Minute)
	return rl
}

// Middleware returns an HTTP middleware that rate limits by client IP.
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			res, now := rl.reserve(ip)
			if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
				res.CancelAt(now)
				retry := int(math.Ceil(delay.Seconds()))
				retry = min(max(retry, 1), 60)
				log.Debug().Str("limiter", rl.name).Str("ip", ip).Msg("rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				handler.JSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "rate limit exceeded, try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Close stops the cleanup loop.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) reserve(ip string) (*rate.Reservation, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.ReserveN(now, 1), now
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

// evictIdle drops visitors not seen within visitorTTL.
func (rl *RateLimiter) evictIdle() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-visitorTTL)
	n := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
			n++
		}
	}
	return n
}

// clientIP prefers proxy headers (X-Real-IP, then the first X-Forwarded-For
// entry) over RemoteAddr.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
