package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/builditusa/scopecast/internal/ratelimit"
)

// RateLimits is a ratelimit.Store backed by the rate_limits table, so
// counters are shared between instances and survive restarts.
type RateLimits struct {
	s *Store
}

func (s *Store) RateLimits() *RateLimits {
	return &RateLimits{s: s}
}

func (r *RateLimits) Get(ctx context.Context, key string) (ratelimit.Record, bool, error) {
	rec := ratelimit.Record{Key: key}
	err := r.s.pool.QueryRow(ctx, `SELECT count, reset_at FROM rate_limits WHERE key = $1`, key).
		Scan(&rec.Count, &rec.ResetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ratelimit.Record{}, false, nil
	}
	if err != nil {
		return ratelimit.Record{}, false, fmt.Errorf("query rate limit: %w", err)
	}
	return rec, true, nil
}

func (r *RateLimits) SetIfAbsentOrExpired(ctx context.Context, key string, now time.Time, window time.Duration) (ratelimit.Record, error) {
	rec := ratelimit.Record{Key: key}
	err := r.s.pool.QueryRow(ctx, `
		INSERT INTO rate_limits (key, count, reset_at)
		VALUES ($1, 0, $3)
		ON CONFLICT (key) DO UPDATE
		SET count = 0, reset_at = EXCLUDED.reset_at
		WHERE rate_limits.reset_at < $2
		RETURNING count, reset_at`,
		key, now, now.Add(window),
	).Scan(&rec.Count, &rec.ResetAt)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ratelimit.Record{}, fmt.Errorf("upsert rate limit: %w", err)
	}

	// Live record: the conditional update touched nothing.
	rec, ok, err := r.Get(ctx, key)
	if err != nil {
		return ratelimit.Record{}, err
	}
	if !ok {
		return ratelimit.Record{}, fmt.Errorf("rate limit %s vanished during upsert", key)
	}
	return rec, nil
}

func (r *RateLimits) Increment(ctx context.Context, key string) (ratelimit.Record, error) {
	rec := ratelimit.Record{Key: key}
	err := r.s.pool.QueryRow(ctx, `
		UPDATE rate_limits SET count = count + 1
		WHERE key = $1
		RETURNING count, reset_at`, key,
	).Scan(&rec.Count, &rec.ResetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ratelimit.Record{}, fmt.Errorf("increment rate limit %s: no record", key)
	}
	if err != nil {
		return ratelimit.Record{}, fmt.Errorf("increment rate limit: %w", err)
	}
	return rec, nil
}

func (r *RateLimits) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.s.pool.QueryRow(ctx, `SELECT count(*) FROM rate_limits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return n, nil
}

func (r *RateLimits) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.s.pool.Exec(ctx, `DELETE FROM rate_limits WHERE reset_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep rate limits: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
