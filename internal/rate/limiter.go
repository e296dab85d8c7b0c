package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable reports that Redis could not be reached. With
// Config.FailOpen unset this surfaces to the caller; with it set the limiter
// allows the request instead.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Config tunes one limiter. Limit is the number of attempts allowed per
// Window for each key.
type Config struct {
	Limit    int
	Window   time.Duration
	Prefix   string
	FailOpen bool
}

// Decision is the outcome of consuming an attempt.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts attempts in fixed windows. Safe for concurrent use.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// New returns a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
	}
}

// Consume records one attempt against key and reports whether it fits the
// current window. The attempt is counted even when rejected.
func (l *Limiter) Consume(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.config.Window)

	count, err := l.redis.Incr(ctx, l.bucketKey(key, windowStart)).Result()
	if err != nil {
		return l.storeFailure(err)
	}

	// First hit creates the bucket; the TTL outlives the window by a full
	// window length, which is harmless since the key names its window.
	if count == 1 {
		if err := l.redis.Expire(ctx, l.bucketKey(key, windowStart), 2*l.config.Window).Err(); err != nil {
			return l.storeFailure(err)
		}
	}

	if count > int64(l.config.Limit) {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: l.retryAfter(now, windowStart),
		}, nil
	}

	return Decision{
		Allowed:   true,
		Remaining: l.config.Limit - int(count),
	}, nil
}

// ConsumeAll records one attempt against every key and rejects when any key
// is over budget. All keys are charged regardless of the outcome, so a
// rejection on one scope does not leave the others uncounted.
func (l *Limiter) ConsumeAll(ctx context.Context, keys ...string) (Decision, error) {
	combined := Decision{Allowed: true, Remaining: l.config.Limit}

	for _, key := range keys {
		if key == "" {
			continue
		}

		d, err := l.Consume(ctx, key)
		if err != nil {
			return Decision{}, err
		}

		if !d.Allowed {
			combined.Allowed = false
			combined.Remaining = 0
			if d.RetryAfter > combined.RetryAfter {
				combined.RetryAfter = d.RetryAfter
			}
			continue
		}
		if combined.Allowed && d.Remaining < combined.Remaining {
			combined.Remaining = d.Remaining
		}
	}

	return combined, nil
}

// Reset deletes the current-window counters for the given keys. Called after
// the guarded operation completes successfully.
func (l *Limiter) Reset(ctx context.Context, keys ...string) error {
	windowStart := l.now().Truncate(l.config.Window)

	buckets := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		buckets = append(buckets, l.bucketKey(key, windowStart))
	}
	if len(buckets) == 0 {
		return nil
	}

	if err := l.redis.Del(ctx, buckets...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Limiter) bucketKey(key string, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%d", l.config.Prefix, key, windowStart.Unix())
}

func (l *Limiter) retryAfter(now, windowStart time.Time) time.Duration {
	after := windowStart.Add(l.config.Window).Sub(now)
	if after < time.Second {
		after = time.Second
	}
	return after
}

func (l *Limiter) storeFailure(err error) (Decision, error) {
	if l.config.FailOpen {
		return Decision{Allowed: true, Remaining: l.config.Limit}, nil
	}
	return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
