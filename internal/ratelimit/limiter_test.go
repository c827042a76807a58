package ratelimit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(store Store, clock *fakeClock, opts ...Option) *Limiter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger, append([]Option{WithClock(clock.Now)}, opts...)...)
}

func TestCheck_DeniesAfterLimitWithinWindow(t *testing.T) {
	for _, authenticated := range []bool{false, true} {
		t.Run(fmt.Sprintf("authenticated=%v", authenticated), func(t *testing.T) {
			clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
			l := newTestLimiter(NewMemoryStore(), clock)
			ctx := context.Background()

			limit := DefaultUnauthenticated.Requests
			if authenticated {
				limit = DefaultAuthenticated.Requests
			}

			var first Decision
			for i := 1; i <= limit; i++ {
				d, err := l.Check(ctx, "203.0.113.7", authenticated)
				require.NoError(t, err)
				require.True(t, d.Allowed, "call %d", i)
				assert.Equal(t, limit-i, d.Remaining)
				if i == 1 {
					first = d
				}
				clock.Advance(time.Minute)
			}

			d, err := l.Check(ctx, "203.0.113.7", authenticated)
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Equal(t, 0, d.Remaining)
			assert.Equal(t, first.ResetAt, d.ResetAt)
		})
	}
}

func TestCheck_AllowsAgainAfterReset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(NewMemoryStore(), clock)
	ctx := context.Background()

	var resetAt time.Time
	for i := 0; i <= DefaultUnauthenticated.Requests; i++ {
		d, err := l.Check(ctx, "ip", false)
		require.NoError(t, err)
		resetAt = d.ResetAt
	}

	// Exactly at ResetAt the window is still live.
	clock.t = resetAt
	d, err := l.Check(ctx, "ip", false)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.Advance(time.Millisecond)
	d, err = l.Check(ctx, "ip", false)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, DefaultUnauthenticated.Requests-1, d.Remaining)
	assert.Equal(t, clock.t.Add(time.Hour), d.ResetAt)
}

func TestCheck_TiersDoNotShareCounters(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := newTestLimiter(NewMemoryStore(), clock)
	ctx := context.Background()

	for i := 0; i < DefaultUnauthenticated.Requests; i++ {
		_, err := l.Check(ctx, "user-1", false)
		require.NoError(t, err)
	}
	d, err := l.Check(ctx, "user-1", false)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = l.Check(ctx, "user-1", true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, DefaultAuthenticated.Requests-1, d.Remaining)
}

func TestCheck_CustomTiers(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := newTestLimiter(NewMemoryStore(), clock, WithTiers(Tier{Requests: 1, Window: time.Minute}, Tier{Requests: 2, Window: time.Minute}))
	ctx := context.Background()

	d, _ := l.Check(ctx, "a", false)
	assert.True(t, d.Allowed)
	d, _ = l.Check(ctx, "a", false)
	assert.False(t, d.Allowed)
}

func TestCheck_LazySweepRemovesExpiredRecords(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	l := newTestLimiter(store, clock, WithSweep(3, 1))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Check(ctx, fmt.Sprintf("stale-%d", i), false)
		require.NoError(t, err)
	}
	n, _ := store.Len(ctx)
	require.Equal(t, 5, n)

	clock.Advance(2 * time.Hour)
	_, err := l.Check(ctx, "fresh", false)
	require.NoError(t, err)

	n, _ = store.Len(ctx)
	assert.Equal(t, 1, n)
	_, ok, _ := store.Get(ctx, Key("fresh", false))
	assert.True(t, ok)
}

func TestCheck_NoSweepBelowThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := NewMemoryStore()
	l := newTestLimiter(store, clock)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = l.Check(ctx, fmt.Sprintf("k-%d", i), false)
	}
	clock.Advance(2 * time.Hour)
	_, _ = l.Check(ctx, "new", false)

	n, _ := store.Len(ctx)
	assert.Equal(t, 11, n)
}

type failingStore struct{ *MemoryStore }

func (f *failingStore) Increment(context.Context, string) (Record, error) {
	return Record{}, fmt.Errorf("connection refused")
}

func TestCheck_StoreErrorPropagates(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := &failingStore{MemoryStore: NewMemoryStore()}
	l := newTestLimiter(store, clock)

	_, err := l.Check(context.Background(), "x", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment rate limit record")
}
