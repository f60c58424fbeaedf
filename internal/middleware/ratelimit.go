package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// fixedWindow counts requests per key in windows of length per. Expired
// buckets are swept at most once per window so the map tracks active clients
// only.
type fixedWindow struct {
	mu      sync.Mutex
	limit   int
	per     time.Duration
	buckets map[string]*bucket
	swept   time.Time
}

func newFixedWindow(limit int, per time.Duration) *fixedWindow {
	return &fixedWindow{limit: limit, per: per, buckets: make(map[string]*bucket)}
}

// allow records a request for key. When the window is full it returns false
// and the time left until the window resets.
func (f *fixedWindow) allow(key string, now time.Time) (bool, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if now.Sub(f.swept) >= f.per {
		for k, b := range f.buckets {
			if now.After(b.until) {
				delete(f.buckets, k)
			}
		}
		f.swept = now
	}
	b, ok := f.buckets[key]
	if !ok || now.After(b.until) {
		b = &bucket{until: now.Add(f.per)}
		f.buckets[key] = b
	}
	if b.count >= f.limit {
		return false, b.until.Sub(now)
	}
	b.count++
	return true, 0
}

// RateLimit allows limit requests per client IP in each fixed window. It
// guards POST /generate, where each request can start a 100-item batch.
// A non-positive limit disables the check.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	window := newFixedWindow(limit, per)
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := window.allow(clientIPForRateLimit(r), time.Now())
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many batch requests, retry later"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
