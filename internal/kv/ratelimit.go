package kv

import (
	"context"
	"fmt"
	"time"
)

// RateLimitResult describes the outcome of one sliding-window check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time // when the current window rolls over
}

// Allow increments the sliding-window counter for (subject, endpoint) and
// reports whether the request fits under limit within the window. The key
// layout is ratelimit:{subject}:{endpoint}:{window-start}; each bucket
// expires two windows after creation so stale counters clean themselves up.
func (s *Store) Allow(ctx context.Context, subject, endpoint string, limit int, window time.Duration) (*RateLimitResult, error) {
	now := time.Now()
	windowStart := now.Truncate(window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", subject, endpoint, windowStart.Unix())

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimit incr: %w", err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, 2*window).Err(); err != nil {
			return nil, fmt.Errorf("ratelimit expire: %w", err)
		}
	}

	res := &RateLimitResult{
		Limit: limit,
		Reset: windowStart.Add(window),
	}
	if int(n) > limit {
		res.Allowed = false
		res.Remaining = 0
		return res, nil
	}
	res.Allowed = true
	res.Remaining = limit - int(n)
	return res, nil
}
