package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

// Locker guards the read-then-write section of booking creation.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// SlotKey identifies one specialist instant on the booking grid.
func SlotKey(specialistID uuid.UUID, instant time.Time) string {
	return fmt.Sprintf("lock:slot:%s:%d", specialistID, instant.Unix())
}

// PatientDayKey identifies a patient's bookings for one specialty on one
// local calendar date (YYYY-MM-DD).
func PatientDayKey(patientID uuid.UUID, specialty, date string) string {
	return fmt.Sprintf("lock:patient-day:%s:%s:%s", patientID, specialty, date)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker that holds one Redis key per guarded resource.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

// WithLocks acquires every key (in sorted order, all or nothing) and runs fn
// while holding them. fn gets a context bounded by the lock TTL.
func (l *redisLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	token := uuid.NewString()
	var held []string

	defer func() {
		for _, key := range held {
			_ = l.release(context.WithoutCancel(ctx), key, token)
		}
	}()

	for _, key := range sorted {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if !ok {
			return ErrLockNotAcquired
		}
		held = append(held, key)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
