package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Limiter defaults to an in-process MemoryLimiter.
	Limiter Limiter
}

// RateLimit rejects clients that exceed cfg.Max requests per cfg.Window with
// 429 and a JSON error body. Every response carries the X-RateLimit-* headers.
// Limiter failures let the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewMemoryLimiter(cfg.Max, cfg.Window)
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			wait := max(d.ResetAt.Sub(now), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":    http.StatusTooManyRequests,
				"message": "rate limit exceeded",
			})
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// window holds the counts of the current and previous fixed windows of one key.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// MemoryLimiter is a sliding-window limiter kept in process memory. The
// previous window's count is weighted by how much of it the sliding window
// still overlaps.
type MemoryLimiter struct {
	max    int
	period time.Duration

	mu   sync.Mutex
	keys map[string]*window
}

// NewMemoryLimiter creates a limiter allowing limit requests per period.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: limit, period: period, keys: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.period)
	w, ok := l.keys[key]
	switch {
	case !ok:
		w = &window{start: start}
		l.keys[key] = w
	case start.Sub(w.start) >= 2*l.period:
		w.start, w.prev, w.curr = start, 0, 0
	case start.After(w.start):
		w.start, w.prev, w.curr = start, w.curr, 0
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.period)
	used := w.prev*max(overlap, 0) + w.curr
	d := Decision{ResetAt: w.start.Add(l.period)}
	if used >= float64(l.max) {
		return d, nil
	}
	w.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-used-1), 0)
	return d, nil
}

// Sweep drops keys that have been idle for two full periods.
func (l *MemoryLimiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.keys {
		if now.Sub(w.start) >= 2*l.period {
			delete(l.keys, key)
		}
	}
}

// Run sweeps idle keys every two periods until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context) {
	t := time.NewTicker(2 * l.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.Sweep(now)
		}
	}
}

// RedisLimiter is a fixed-window limiter shared by every API replica. Each
// window is a counter key that expires with the window.
type RedisLimiter struct {
	client redis.UniversalClient
	max    int
	period time.Duration
	prefix string
}

// NewRedisLimiter creates a limiter allowing limit requests per period.
func NewRedisLimiter(client redis.UniversalClient, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: limit, period: period, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	start := now.Truncate(l.period)
	redisKey := l.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.PExpire(ctx, redisKey, l.period)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	count := int(incr.Val())
	return Decision{
		Allowed:   count <= l.max,
		Remaining: max(l.max-count, 0),
		ResetAt:   start.Add(l.period),
	}, nil
}
