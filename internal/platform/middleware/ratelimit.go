package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bptrack/bptrack/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// Store decides each request. Nil uses an in-process token bucket per key.
	Store  LimiterStore
	Logger zerolog.Logger
}

// LimiterStore decides whether the request identified by key may proceed.
// retryAfter is meaningful only when allowed is false.
type LimiterStore interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: now,
	}
}

func (b *tokenBucket) take(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = math.Min(b.maxTokens, b.tokens+now.Sub(b.lastRefill).Seconds()*b.refillRate)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.refillRate <= 0 {
		return false, time.Second
	}
	return false, time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
}

// MemoryStore keeps one token bucket per key in process memory.
type MemoryStore struct {
	rate    float64
	burst   int
	now     func() time.Time
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
}

func NewMemoryStore(rate float64, burst int) *MemoryStore {
	return &MemoryStore{rate: rate, burst: burst, now: time.Now, buckets: make(map[string]*tokenBucket)}
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := s.now()
	ok, wait := s.bucket(key, now).take(now)
	return ok, wait, nil
}

func (s *MemoryStore) bucket(key string, now time.Time) *tokenBucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if b, ok := s.buckets[key]; ok {
		return b
	}
	b = newTokenBucket(s.rate, s.burst, now)
	s.buckets[key] = b
	return b
}

// RedisStore is a fixed one-second window counter shared by every API
// instance. Each window admits rate+burst requests.
type RedisStore struct {
	client redis.Cmdable
	limit  int64
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable, rate float64, burst int) *RedisStore {
	return &RedisStore{
		client: client,
		limit:  int64(math.Ceil(rate)) + int64(burst),
		prefix: "bptrack:ratelimit:",
		now:    time.Now,
	}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := s.now()
	window := now.Unix()
	k := s.prefix + key + ":" + strconv.FormatInt(window, 10)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, 2*time.Second)
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	if incr.Val() > s.limit {
		return false, time.Unix(window+1, 0).Sub(now), nil
	}
	return true, 0, nil
}

// RateLimit throttles requests per authenticated user, falling back to the
// client IP. When the store fails the request is let through and the
// failure logged.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(cfg.RequestsPerSecond, cfg.BurstSize)
	}
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = "user:" + uid
			}

			allowed, wait, err := store.Allow(c.Request().Context(), key)
			if err != nil {
				cfg.Logger.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if !allowed {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
