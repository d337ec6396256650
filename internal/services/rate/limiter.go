package rate

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	minuteWindow = time.Minute
	tenSecWindow = 10 * time.Second
)

var ErrInvalidUser = errors.New("invalid user id")

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
}

// Limiter throttles scan bursts per user. It is not a quota: blocked attempts
// never touch the usage counters.
type Limiter struct {
	store     WindowStore
	perMinute int
	per10Sec  int
}

func NewLimiter(store WindowStore, perMinute, per10Sec int) *Limiter {
	return &Limiter{
		store:     store,
		perMinute: max(perMinute, 0),
		per10Sec:  max(per10Sec, 0),
	}
}

// AllowScan returns the seconds to wait when either window is exhausted.
// A limiter without a store lets everything through.
func (l *Limiter) AllowScan(ctx context.Context, userID string) (int64, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, false, ErrInvalidUser
	}
	if l == nil || l.store == nil {
		return 0, true, nil
	}

	var retryAfter int64
	for _, w := range l.windows(userID) {
		count, ttl, err := l.store.IncrementWindow(ctx, w.key, w.size)
		if err != nil {
			return 0, false, err
		}
		if count > int64(w.limit) {
			retryAfter = max(retryAfter, ceilSeconds(ttl))
		}
	}

	if retryAfter > 0 {
		return retryAfter, false, nil
	}
	return 0, true, nil
}

// RetryAfter reports the current wait without consuming a slot.
func (l *Limiter) RetryAfter(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrInvalidUser
	}
	if l == nil || l.store == nil {
		return 0, nil
	}

	var retryAfter int64
	for _, w := range l.windows(userID) {
		count, ttl, err := l.store.WindowState(ctx, w.key)
		if err != nil {
			return 0, err
		}
		if count >= int64(w.limit) {
			retryAfter = max(retryAfter, ceilSeconds(ttl))
		}
	}
	return retryAfter, nil
}

type window struct {
	key   string
	size  time.Duration
	limit int
}

func (l *Limiter) windows(userID string) []window {
	out := make([]window, 0, 2)
	if l.perMinute > 0 {
		out = append(out, window{key: "rate:scans:min:" + userID, size: minuteWindow, limit: l.perMinute})
	}
	if l.per10Sec > 0 {
		out = append(out, window{key: "rate:scans:10s:" + userID, size: tenSecWindow, limit: l.per10Sec})
	}
	return out
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return max(sec, 1)
}
