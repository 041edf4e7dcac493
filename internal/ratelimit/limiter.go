package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// Window is the sliding window every limit is expressed against.
	Window = time.Minute

	// Anonymous is the subject used for unauthenticated requests.
	Anonymous = "anonymous"

	DefaultPerMinute = 60
)

// DefaultLimits are requests per Window keyed by "endpoint.action".
var DefaultLimits = map[string]int{
	"auth.login":     5,
	"auth.register":  3,
	"chat.message":   30,
	"mood.entry":     10,
	"mood.analytics": 20,
}

// Key identifies one rate window.
type Key struct {
	Subject  string
	Endpoint string
	Action   string
}

// SubjectKey returns the key for an authenticated user, or for Anonymous
// when userID is zero.
func SubjectKey(userID int64, endpoint, action string) Key {
	subject := Anonymous
	if userID != 0 {
		subject = strconv.FormatInt(userID, 10)
	}
	return Key{Subject: subject, Endpoint: endpoint, Action: action}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Subject, k.Endpoint, k.Action)
}

// WindowStore holds request timestamps per key. Timestamps t with
// now-t >= window are expired and must never be counted.
type WindowStore interface {
	// Admit prunes expired timestamps and, if fewer than limit remain,
	// records now. It returns the pruned count seen before recording.
	Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (count int, admitted bool, err error)
	// Count returns the number of live timestamps without recording.
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter struct {
	store        WindowStore
	limits       map[string]int
	defaultLimit int
	failOpen     bool
	now          func() time.Time
	logger       *zap.Logger
	observer     func(Key, Decision)
}

type Option func(*Limiter)

// WithLimits replaces the per endpoint.action table.
func WithLimits(limits map[string]int, defaultLimit int) Option {
	return func(l *Limiter) {
		l.limits = limits
		l.defaultLimit = defaultLimit
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithFailOpen controls whether store failures admit (true, the default)
// or reject requests.
func WithFailOpen(failOpen bool) Option {
	return func(l *Limiter) { l.failOpen = failOpen }
}

// WithObserver registers a callback invoked with every admission decision.
func WithObserver(fn func(Key, Decision)) Option {
	return func(l *Limiter) { l.observer = fn }
}

func NewLimiter(store WindowStore, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:        store,
		limits:       DefaultLimits,
		defaultLimit: DefaultPerMinute,
		failOpen:     true,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LimitFor returns the configured limit for endpoint and action.
func (l *Limiter) LimitFor(endpoint, action string) int {
	if n, ok := l.limits[endpoint+"."+action]; ok {
		return n
	}
	return l.defaultLimit
}

// Admit records a request against key if its window has room.
func (l *Limiter) Admit(ctx context.Context, key Key) Decision {
	limit := l.LimitFor(key.Endpoint, key.Action)

	count, admitted, err := l.store.Admit(ctx, key.String(), l.now(), Window, limit)
	var d Decision
	switch {
	case err != nil:
		l.logger.Error("rate limit check failed",
			zap.Stringer("key", key),
			zap.Bool("fail_open", l.failOpen),
			zap.Error(err))
		if l.failOpen {
			d = Decision{Allowed: true, Limit: limit, Remaining: limit}
		} else {
			d = Decision{Allowed: false, Limit: limit, RetryAfter: Window}
		}
	case admitted:
		d = Decision{Allowed: true, Limit: limit, Remaining: max(0, limit-count-1)}
	default:
		d = Decision{Allowed: false, Limit: limit, RetryAfter: Window}
	}

	if l.observer != nil {
		l.observer(key, d)
	}
	return d
}

// Remaining reports how many more requests key may make right now. It does
// not record anything and reports zero when the store is unavailable.
func (l *Limiter) Remaining(ctx context.Context, key Key) int {
	limit := l.LimitFor(key.Endpoint, key.Action)
	count, err := l.store.Count(ctx, key.String(), l.now(), Window)
	if err != nil {
		l.logger.Error("failed to get remaining requests", zap.Stringer("key", key), zap.Error(err))
		return 0
	}
	return max(0, limit-count)
}
