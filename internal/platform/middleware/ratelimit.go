package middleware

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vitalab/vitalab/internal/platform/auth"
	"github.com/vitalab/vitalab/internal/platform/httperr"
)

// Window is one sliding-window bound: at most Limit requests per Period.
type Window struct {
	Limit  int
	Period time.Duration
}

// Profile is the ordered set of windows applied to a route class. Windows
// are checked burst first, then minute, hour, day; the first exceeded
// window rejects the request.
type Profile struct {
	Name   string
	Burst  Window
	Minute Window
	Hour   Window
	Day    Window
}

func (p Profile) windows() []Window {
	return []Window{p.Burst, p.Minute, p.Hour, p.Day}
}

// DefaultProfiles returns the built-in route profiles. Auth endpoints are
// throttled hardest since they are the credential-stuffing surface; public
// catalog/company reads get the loosest bounds.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"default": {
			Name:   "default",
			Burst:  Window{Limit: 10, Period: 10 * time.Second},
			Minute: Window{Limit: 60, Period: time.Minute},
			Hour:   Window{Limit: 1000, Period: time.Hour},
			Day:    Window{Limit: 10000, Period: 24 * time.Hour},
		},
		"strict": {
			Name:   "strict",
			Burst:  Window{Limit: 5, Period: 10 * time.Second},
			Minute: Window{Limit: 20, Period: time.Minute},
			Hour:   Window{Limit: 200, Period: time.Hour},
			Day:    Window{Limit: 2000, Period: 24 * time.Hour},
		},
		"relaxed": {
			Name:   "relaxed",
			Burst:  Window{Limit: 20, Period: 10 * time.Second},
			Minute: Window{Limit: 120, Period: time.Minute},
			Hour:   Window{Limit: 2000, Period: time.Hour},
			Day:    Window{Limit: 20000, Period: 24 * time.Hour},
		},
		"auth": {
			Name:   "auth",
			Burst:  Window{Limit: 5, Period: 10 * time.Second},
			Minute: Window{Limit: 10, Period: time.Minute},
			Hour:   Window{Limit: 50, Period: time.Hour},
			Day:    Window{Limit: 500, Period: 24 * time.Hour},
		},
		"public": {
			Name:   "public",
			Burst:  Window{Limit: 30, Period: 10 * time.Second},
			Minute: Window{Limit: 100, Period: time.Minute},
			Hour:   Window{Limit: 5000, Period: time.Hour},
			Day:    Window{Limit: 50000, Period: 24 * time.Hour},
		},
	}
}

// DefaultRoutes maps path prefixes to profile names. The longest matching
// prefix wins.
func DefaultRoutes() map[string]string {
	return map[string]string{
		"/api/v1/auth":      "auth",
		"/api/v1/lab-tests": "public",
		"/api/v1/company":   "public",
		"/api/v1/reports":   "strict",
		"/health":           "relaxed",
	}
}

// Decision reports the outcome of one window check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds until the caller should retry
}

// WindowStore tracks request timestamps per key and window. Implementations
// must evict entries older than now-Period, reject when the window is full
// and otherwise record the request. The in-memory store is the default; a
// shared store (redis) makes the limit global across processes.
type WindowStore interface {
	Take(ctx context.Context, key string, w Window, now time.Time) (Decision, error)
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

const (
	memoryShards   = 16
	cleanupEvery   = 5 * time.Minute
	fnvOffsetBasis = 2166136261
	fnvPrime       = 16777619
)

type memoryShard struct {
	mu          sync.Mutex
	windows     map[string][]time.Time // key|period -> timestamps, oldest first
	lastCleanup time.Time
}

// MemoryWindowStore is a sharded in-process WindowStore. Each shard holds
// its own lock so hot keys do not serialize the whole limiter. Empty queues
// are purged opportunistically on access, at most once per cleanup interval
// per shard.
type MemoryWindowStore struct {
	shards [memoryShards]*memoryShard
}

func NewMemoryWindowStore() *MemoryWindowStore {
	s := &MemoryWindowStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{windows: make(map[string][]time.Time)}
	}
	return s
}

func (s *MemoryWindowStore) shard(key string) *memoryShard {
	h := uint32(fnvOffsetBasis)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime
	}
	return s.shards[h%memoryShards]
}

func (s *MemoryWindowStore) Take(_ context.Context, key string, w Window, now time.Time) (Decision, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.lastCleanup.IsZero() {
		sh.lastCleanup = now
	} else if now.Sub(sh.lastCleanup) >= cleanupEvery {
		sh.purge(now)
		sh.lastCleanup = now
	}

	wkey := key + "|" + w.Period.String()
	q := sh.windows[wkey]

	cutoff := now.Add(-w.Period)
	evicted := 0
	for evicted < len(q) && !q[evicted].After(cutoff) {
		evicted++
	}
	q = q[evicted:]

	d := Decision{Limit: w.Limit}
	if len(q) >= w.Limit {
		d.Allowed = false
		d.Remaining = 0
		d.RetryAfter = int(w.Period.Seconds())
		sh.windows[wkey] = q
		return d, nil
	}

	q = append(q, now)
	sh.windows[wkey] = q
	d.Allowed = true
	d.Remaining = w.Limit - len(q)
	return d, nil
}

// purge drops queues whose newest entry is older than a day. Must be called
// with the shard lock held.
func (sh *memoryShard) purge(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	for k, q := range sh.windows {
		if len(q) == 0 || q[len(q)-1].Before(cutoff) {
			delete(sh.windows, k)
		}
	}
}

// ---------------------------------------------------------------------------
// Limiter
// ---------------------------------------------------------------------------

// RateLimiter applies per-key sliding-window limits before request dispatch.
type RateLimiter struct {
	store    WindowStore
	profiles map[string]Profile
	prefixes []string          // route prefixes, longest first
	routes   map[string]string // prefix -> profile name
	now      func() time.Time
	logger   zerolog.Logger
}

// RateLimiterOption customizes a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithClock injects the time source. Used by tests to advance windows.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// WithRoutes replaces the prefix-to-profile routing table.
func WithRoutes(routes map[string]string) RateLimiterOption {
	return func(rl *RateLimiter) { rl.setRoutes(routes) }
}

// WithProfiles replaces the profile set. A "default" profile must exist.
func WithProfiles(profiles map[string]Profile) RateLimiterOption {
	return func(rl *RateLimiter) { rl.profiles = profiles }
}

func NewRateLimiter(store WindowStore, logger zerolog.Logger, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		store:    store,
		profiles: DefaultProfiles(),
		now:      time.Now,
		logger:   logger,
	}
	rl.setRoutes(DefaultRoutes())
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

func (rl *RateLimiter) setRoutes(routes map[string]string) {
	rl.routes = routes
	rl.prefixes = rl.prefixes[:0]
	for p := range routes {
		rl.prefixes = append(rl.prefixes, p)
	}
	sort.Slice(rl.prefixes, func(i, j int) bool { return len(rl.prefixes[i]) > len(rl.prefixes[j]) })
}

// ProfileFor resolves the profile for a request path by longest prefix
// match, falling back to "default".
func (rl *RateLimiter) ProfileFor(path string) Profile {
	for _, prefix := range rl.prefixes {
		if strings.HasPrefix(path, prefix) {
			if p, ok := rl.profiles[rl.routes[prefix]]; ok {
				return p
			}
		}
	}
	return rl.profiles["default"]
}

// keyFor derives the limiter key: the authenticated user when upstream
// middleware resolved one, the client IP otherwise.
func keyFor(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.RealIP()
}

// Allow runs the request through every window of the profile in order and
// returns the first rejecting decision, or the minute-window decision when
// all pass (the minute window is what the response headers advertise).
func (rl *RateLimiter) Allow(ctx context.Context, key string, p Profile) (Decision, error) {
	now := rl.now()
	var minuteDecision Decision
	for i, w := range p.windows() {
		d, err := rl.store.Take(ctx, key, w, now)
		if err != nil {
			return Decision{}, fmt.Errorf("rate limit store: %w", err)
		}
		if !d.Allowed {
			return d, nil
		}
		if i == 1 {
			minuteDecision = d
		}
	}
	return minuteDecision, nil
}

// Middleware enforces the limiter on every request. Store failures fail
// open: a broken shared store should degrade limiting, not availability.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := keyFor(c)
			profile := rl.ProfileFor(c.Request().URL.Path)

			d, err := rl.Allow(c.Request().Context(), key, profile)
			if err != nil {
				rl.logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(profile.Minute.Period).Unix(), 10))

			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
				return httperr.RateLimited(d.RetryAfter)
			}

			return next(c)
		}
	}
}
