// Package ratelimit implements fixed-window admission control keyed by caller
// identity and auth tier.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Tier is one fixed window: Requests per Window.
type Tier struct {
	Requests int
	Window   time.Duration
}

var (
	DefaultUnauthenticated = Tier{Requests: 5, Window: time.Hour}
	DefaultAuthenticated   = Tier{Requests: 15, Window: time.Hour}
)

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter applies the fixed-window policy over a Store.
type Limiter struct {
	store  Store
	unauth Tier
	auth   Tier
	now    func() time.Time
	logger *slog.Logger

	// Lazy cleanup: sweep once the store tracks more than sweepAbove keys
	// and the current record's count lands on a multiple of sweepEvery.
	sweepAbove int
	sweepEvery int
}

type Option func(*Limiter)

func WithTiers(unauthenticated, authenticated Tier) Option {
	return func(l *Limiter) {
		l.unauth = unauthenticated
		l.auth = authenticated
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithSweep(above, every int) Option {
	return func(l *Limiter) {
		l.sweepAbove = above
		l.sweepEvery = every
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:      store,
		unauth:     DefaultUnauthenticated,
		auth:       DefaultAuthenticated,
		now:        time.Now,
		logger:     logger,
		sweepAbove: 50,
		sweepEvery: 100,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key builds the store key; the two tiers never share a counter.
func Key(identity string, authenticated bool) string {
	if authenticated {
		return identity + ":auth"
	}
	return identity + ":unauth"
}

// Check admits or denies one request for identity.
func (l *Limiter) Check(ctx context.Context, identity string, authenticated bool) (Decision, error) {
	tier := l.unauth
	if authenticated {
		tier = l.auth
	}
	key := Key(identity, authenticated)
	now := l.now()

	rec, err := l.store.SetIfAbsentOrExpired(ctx, key, now, tier.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("load rate limit record: %w", err)
	}

	l.maybeSweep(ctx, rec, now)

	if rec.Count >= tier.Requests {
		return Decision{Allowed: false, Remaining: 0, ResetAt: rec.ResetAt}, nil
	}

	rec, err = l.store.Increment(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("increment rate limit record: %w", err)
	}
	remaining := tier.Requests - rec.Count
	if remaining < 0 {
		// Another instance raced past the limit between read and increment.
		return Decision{Allowed: false, Remaining: 0, ResetAt: rec.ResetAt}, nil
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: rec.ResetAt}, nil
}

func (l *Limiter) maybeSweep(ctx context.Context, rec Record, now time.Time) {
	sw, ok := l.store.(Sweeper)
	if !ok || l.sweepEvery <= 0 || rec.Count%l.sweepEvery != 0 {
		return
	}
	n, err := sw.Len(ctx)
	if err != nil || n <= l.sweepAbove {
		return
	}
	removed, err := sw.SweepExpired(ctx, now)
	if err != nil {
		l.logger.Warn("rate limit sweep failed", "error", err)
		return
	}
	l.logger.Debug("rate limit sweep", "tracked", n, "removed", removed)
}
