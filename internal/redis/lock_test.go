package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, Locker) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLocker(client, 2*time.Second)
}

func TestWithLocksRunsAndReleases(t *testing.T) {
	mr, locker := newTestLocker(t)
	keys := []string{"lock:b", "lock:a"}

	ran := false
	err := locker.WithLocks(context.Background(), keys, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:a"))
		assert.True(t, mr.Exists("lock:b"))
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:a"))
	assert.False(t, mr.Exists("lock:b"))
}

func TestWithLocksBusyKey(t *testing.T) {
	mr, locker := newTestLocker(t)
	require.NoError(t, mr.Set("lock:b", "someone-else"))

	err := locker.WithLocks(context.Background(), []string{"lock:a", "lock:b"}, func(context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, mr.Exists("lock:a"), "partially acquired keys are released")
	got, _ := mr.Get("lock:b")
	assert.Equal(t, "someone-else", got, "foreign lock is untouched")
}

func TestWithLocksPropagatesError(t *testing.T) {
	mr, locker := newTestLocker(t)
	boom := errors.New("boom")

	err := locker.WithLocks(context.Background(), []string{"lock:a"}, func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:a"))
}

func TestWithLocksSetsTTL(t *testing.T) {
	mr, locker := newTestLocker(t)

	_ = locker.WithLocks(context.Background(), []string{"lock:a"}, func(context.Context) error {
		assert.Equal(t, 2*time.Second, mr.TTL("lock:a"))
		return nil
	})
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("7b0c5e0e-8d0f-4d1b-9a57-3a8d0c0e9f11")
	instant := time.Date(2024, time.May, 13, 8, 30, 0, 0, time.UTC)

	assert.Equal(t, "lock:slot:7b0c5e0e-8d0f-4d1b-9a57-3a8d0c0e9f11:1715589000", SlotKey(id, instant))
	assert.Equal(t,
		"lock:patient-day:7b0c5e0e-8d0f-4d1b-9a57-3a8d0c0e9f11:Cardiology:2024-05-13",
		PatientDayKey(id, "Cardiology", "2024-05-13"))
	assert.NotEqual(t, PatientDayKey(id, "Cardiology", "2024-05-13"), PatientDayKey(id, "cardiology", "2024-05-13"))
}
