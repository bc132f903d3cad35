package ratelimit

import (
	"context"
	"time"

	"judgecore/internal/common/cache"
	appErr "judgecore/pkg/errors"
)

const windowKeyPrefix = "ratelimit:submit:"

// Window counts submits per key in a fixed redis window, shared across
// every judge instance. It fails open: a broken transport reports the
// submit as allowed alongside the error.
type Window struct {
	cache  cache.Cache
	limit  int64
	period time.Duration
}

// NewWindow creates a window allowing limit submits per period.
func NewWindow(cacheClient cache.Cache, limit int64, period time.Duration) *Window {
	if limit <= 0 {
		limit = 1
	}
	if period <= 0 {
		period = time.Minute
	}
	return &Window{cache: cacheClient, limit: limit, period: period}
}

// Allow counts one submit for the key and reports whether the window limit
// still holds.
func (w *Window) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, appErr.ValidationError("key", "required")
	}
	k := windowKeyPrefix + key
	n, err := w.cache.Incr(ctx, k)
	if err != nil {
		return true, appErr.Wrap(err, appErr.CacheError).WithMessage("rate window incr")
	}
	if n == 1 {
		if err := w.cache.Expire(ctx, k, w.period); err != nil {
			// A counter that never expires would lock the key out; drop it.
			_ = w.cache.Del(ctx, k)
			return true, appErr.Wrap(err, appErr.CacheError).WithMessage("rate window expire")
		}
	}
	return n <= w.limit, nil
}
