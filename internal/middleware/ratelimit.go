package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter applies a per-IP token bucket in front of a handler.
// PacketMill mounts it on the token mint endpoint so the passphrase cannot
// be brute-forced at line rate.
type RateLimiter struct {
	mu     sync.Mutex
	perIP  map[string]*visitor
	rate   rate.Limit
	burst  int
	maxIPs int // cap on tracked addresses
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter sustaining r requests per second per IP
// with the given burst headroom.
func NewRateLimiter(r float64, burst int) *RateLimiter {
	return &RateLimiter{
		perIP:  make(map[string]*visitor),
		rate:   rate.Limit(r),
		burst:  burst,
		maxIPs: 100000,
	}
}

// Handler rejects over-limit requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wait, ok := rl.admit(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LimitPath applies the limiter only to requests matching method and path,
// letting everything else through untouched.
func (rl *RateLimiter) LimitPath(method, path string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := rl.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == method && r.URL.Path == path {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// admit reserves one token for ip, reporting the wait when none is free.
// Unknown IPs past the tracking cap are turned away for one refill period
// rather than growing the map without bound.
func (rl *RateLimiter) admit(ip string) (time.Duration, bool) {
	rl.mu.Lock()
	v, ok := rl.perIP[ip]
	if !ok {
		if len(rl.perIP) >= rl.maxIPs {
			rl.mu.Unlock()
			return time.Duration(float64(time.Second) / float64(rl.rate)), false
		}
		v = &visitor{lim: rate.NewLimiter(rl.rate, rl.burst)}
		rl.perIP[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	res := v.lim.Reserve()
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return d, false
	}
	return 0, true
}

// StartCleanup spawns a goroutine that drops visitors idle longer than
// maxIdle, checking every interval. The returned function stops it and is
// safe to call more than once.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for ip, v := range rl.perIP {
		if v.lastSeen.Before(cutoff) {
			delete(rl.perIP, ip)
		}
	}
}

// Len reports the number of tracked addresses.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.perIP)
}

// clientIP takes the peer address, never proxy headers, which an attacker
// could set freely to dodge the limit.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
