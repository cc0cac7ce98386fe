package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit allows Requests per Window for each client.
type Limit struct {
	Requests int
	Window   time.Duration
}

// RateLimitStore keeps fixed-window counters.
type RateLimitStore interface {
	// Increment bumps the counter for key, starting a new window when none
	// is active, and returns the new count.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	IsHealthy(ctx context.Context) bool
}

// MemoryRateLimitStore keeps counters in process. Suitable for a single
// instance.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	ops     int
	now     func() time.Time
}

type rateLimitEntry struct {
	count     int64
	expiresAt time.Time
}

const memorySweepEvery = 1000

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		entries: make(map[string]*rateLimitEntry),
		now:     time.Now,
	}
}

func (s *MemoryRateLimitStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	s.ops++
	if s.ops%memorySweepEvery == 0 {
		for k, e := range s.entries {
			if now.After(e.expiresAt) {
				delete(s.entries, k)
			}
		}
	}

	entry, exists := s.entries[key]
	if !exists || now.After(entry.expiresAt) {
		s.entries[key] = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

func (s *MemoryRateLimitStore) IsHealthy(context.Context) bool { return true }

// RedisRateLimitStore shares counters across instances through Redis.
type RedisRateLimitStore struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
}

func NewRedisRateLimitStore(client redis.Cmdable, prefix string, logger *slog.Logger) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "rate_limit_store"),
	}
}

func (s *RedisRateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := fmt.Sprintf("%s:%s", s.prefix, key)

	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, fullKey, window).Err(); err != nil {
			s.logger.Warn("failed to set rate limit expiration", "key", fullKey, "error", err)
		}
	}

	return count, nil
}

func (s *RedisRateLimitStore) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

// RateLimiter rejects clients that exceed their limit with 429.
type RateLimiter struct {
	store RateLimitStore
	limit Limit
	// FailOpen lets requests through when the store is unavailable.
	FailOpen bool
	logger   *slog.Logger
}

func NewRateLimiter(store RateLimitStore, limit Limit, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		store:    store,
		limit:    limit,
		FailOpen: true,
		logger:   logger.With("component", "rate_limiter"),
	}
}

var errStoreUnavailable = errors.New("rate limit store unavailable")

// Middleware limits requests per client within scope.
func (rl *RateLimiter) Middleware(scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientID(r)
			key := scope + ":" + clientID

			count, err := rl.store.Increment(r.Context(), key, rl.limit.Window)
			if err != nil {
				rl.logger.Error("rate limit check failed", "key", key, "error", err)
				if rl.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, errStoreUnavailable.Error())
				return
			}

			remaining := rl.limit.Requests - int(count)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if count > int64(rl.limit.Requests) {
				rl.logger.Warn("rate limit exceeded",
					"client_id", clientID,
					"scope", scope,
					"count", count,
					"limit", rl.limit.Requests,
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.limit.Window.Seconds())))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientID relies on chi's RealIP having already rewritten RemoteAddr.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
