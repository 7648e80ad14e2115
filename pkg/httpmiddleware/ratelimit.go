package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// Max is the bucket size: a client may burst Max requests and then gets
	// Max requests per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests, such as payment provider webhooks.
	Skip func(*http.Request) bool
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// buckets holds one token bucket per client key.
type buckets struct {
	cfg      RateLimitConfig
	perToken time.Duration
	now      func() time.Time

	mu   sync.Mutex
	byID map[string]*bucket
}

func newBuckets(cfg RateLimitConfig) *buckets {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &buckets{
		cfg:      cfg,
		perToken: cfg.Window / time.Duration(max(cfg.Max, 1)),
		now:      time.Now,
		byID:     make(map[string]*bucket),
	}
}

// verdict is the outcome of one take.
type verdict struct {
	allowed   bool
	remaining int
	// full is when the bucket is back at Max tokens.
	full time.Time
	// retry is the wait for the next token on a denied request.
	retry time.Duration
}

func (b *buckets) take(key string) verdict {
	now := b.now()

	b.mu.Lock()
	bk, ok := b.byID[key]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(rate.Every(b.perToken), b.cfg.Max)}
		b.byID[key] = bk
	}
	bk.seen = now
	b.mu.Unlock()

	v := verdict{allowed: bk.lim.AllowN(now, 1)}
	tokens := bk.lim.TokensAt(now)
	v.remaining = max(int(math.Floor(tokens)), 0)

	v.full = now.Add(time.Duration((float64(b.cfg.Max) - tokens) * float64(b.perToken)))
	if !v.allowed {
		v.retry = time.Duration((1 - tokens) * float64(b.perToken))
	}
	return v
}

// evict drops buckets idle long enough to have refilled completely.
func (b *buckets) evict() {
	cutoff := b.now().Add(-b.cfg.Window)

	b.mu.Lock()
	defer b.mu.Unlock()
	for key, bk := range b.byID {
		if bk.seen.Before(cutoff) {
			delete(b.byID, key)
		}
	}
}

func (b *buckets) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

// RateLimit limits each client to Max requests per Window with bursts up to
// Max. Limited responses are 429 with the shared JSON error body and a
// Retry-After header; every counted response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset. Idle clients are forgotten
// until ctx is cancelled.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	b := newBuckets(cfg)
	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.evict()
			}
		}
	}()
	return b.middleware
}

func (b *buckets) middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(b.cfg.Max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.cfg.Skip != nil && b.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		v := b.take(b.cfg.KeyFunc(r))
		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(v.full.Unix(), 10))

		if !v.allowed {
			h.Set("Retry-After", strconv.Itoa(max(int(math.Ceil(v.retry.Seconds())), 1)))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP keys a request by the first X-Forwarded-For hop, then X-Real-IP,
// then the connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// BearerOrIPKey keys authenticated requests by a digest of their bearer token
// so customers behind one NAT do not share a budget. Other requests fall back
// to ClientIP.
func BearerOrIPKey(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return ClientIP(r)
	}
	sum := sha256.Sum256([]byte(token))
	return "bearer:" + hex.EncodeToString(sum[:8])
}
