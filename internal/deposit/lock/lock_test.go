package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coinvault.com/internal/deposit/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, wait, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, wait, ttl), mr
}

func lockers(t *testing.T, wait time.Duration) map[string]Locker {
	rl, _ := newRedisLocker(t, wait, 5*time.Second)
	return map[string]Locker{
		"memory": NewMemLocker(wait),
		"redis":  rl,
	}
}

func TestLocker_BusyWhenHeld(t *testing.T) {
	for name, l := range lockers(t, 30*time.Millisecond) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			release, err := l.Acquire(ctx, 1)
			require.NoError(t, err)

			_, err = l.Acquire(ctx, 1)
			assert.ErrorIs(t, err, domain.ErrBusy)

			// 其他记录不受影响
			other, err := l.Acquire(ctx, 2)
			require.NoError(t, err)
			other()

			release()
			again, err := l.Acquire(ctx, 1)
			require.NoError(t, err)
			again()
		})
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	for name, l := range lockers(t, 2*time.Second) {
		t.Run(name, func(t *testing.T) {
			var (
				inside  atomic.Int32
				maxSeen atomic.Int32
				wg      sync.WaitGroup
				start   = make(chan struct{})
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					release, err := l.Acquire(context.Background(), 42)
					if err != nil {
						return
					}
					n := inside.Add(1)
					if n > maxSeen.Load() {
						maxSeen.Store(n)
					}
					time.Sleep(2 * time.Millisecond)
					inside.Add(-1)
					release()
				}()
			}
			close(start)
			wg.Wait()
			assert.Equal(t, int32(1), maxSeen.Load())
		})
	}
}

func TestMemLocker_ReleaseIsIdempotentAndSlotsReclaimed(t *testing.T) {
	l := NewMemLocker(10 * time.Millisecond)
	release, err := l.Acquire(context.Background(), 5)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), 5)
	require.ErrorIs(t, err, domain.ErrBusy)

	release()
	release()

	l.mu.Lock()
	assert.Empty(t, l.slots)
	l.mu.Unlock()
}

func TestMemLocker_ContextCanceled(t *testing.T) {
	l := NewMemLocker(time.Second)
	release, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisLocker_ExpiresAfterTTL(t *testing.T) {
	l, mr := newRedisLocker(t, 20*time.Millisecond, time.Second)
	ctx := context.Background()

	_, err := l.Acquire(ctx, 9)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:deposit:9"))

	// 持有者崩溃，不解锁
	mr.FastForward(2 * time.Second)

	release, err := l.Acquire(ctx, 9)
	require.NoError(t, err)
	release()
	assert.False(t, mr.Exists("lock:deposit:9"))
}

func TestRedisLocker_BackendDownIsBusy(t *testing.T) {
	l, mr := newRedisLocker(t, 20*time.Millisecond, time.Second)
	mr.Close()

	_, err := l.Acquire(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrBusy)
}
