package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another request holds the lock.
var ErrNotAcquired = fmt.Errorf("lock not acquired")

// CalendarLock serializes booking writes per tutor calendar with a Redis
// SETNX lock. Holding the lock does not replace the database-level conflict
// check; it only shrinks the window in which two requests race the same slot.
type CalendarLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCalendarLock creates a lock manager with the given hold TTL.
func NewCalendarLock(client *redis.Client, ttl time.Duration) *CalendarLock {
	return &CalendarLock{client: client, ttl: ttl}
}

func lockKey(tutorID string) string {
	return "lock:calendar:" + tutorID
}

// Acquire takes the per-tutor lock. ErrNotAcquired means another booking for
// the same tutor is in flight.
func (l *CalendarLock) Acquire(ctx context.Context, tutorID, ownerID string) error {
	const op = "lock.CalendarLock.Acquire"

	ok, err := l.client.SetNX(ctx, lockKey(tutorID), ownerID, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// Release frees the lock if this owner still holds it. A lock taken over by
// another owner after TTL expiry is left alone.
func (l *CalendarLock) Release(ctx context.Context, tutorID, ownerID string) error {
	const op = "lock.CalendarLock.Release"

	const script = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0`
	if err := l.client.Eval(ctx, script, []string{lockKey(tutorID)}, ownerID).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
