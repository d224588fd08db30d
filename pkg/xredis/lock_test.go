package xredis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestDistLock_TryLockAndUnlock(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewDistLock(rdb, "lock:deposit:1", 5*time.Second)
	b := NewDistLock(rdb, "lock:deposit:1", 5*time.Second)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// b 不能释放 a 的锁
	released, err := b.Unlock(ctx)
	require.NoError(t, err)
	assert.False(t, released)

	released, err = a.Unlock(ctx)
	require.NoError(t, err)
	assert.True(t, released)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistLock_LockWithinTimesOut(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	holder := NewDistLock(rdb, "lock:deposit:2", 5*time.Second)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	waiter := NewDistLock(rdb, "lock:deposit:2", 5*time.Second)
	start := time.Now()
	ok, err = waiter.LockWithin(ctx, 60*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDistLock_ExpiresWhenHolderDies(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	holder := NewDistLock(rdb, "lock:deposit:3", time.Second)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = NewDistLock(rdb, "lock:deposit:3", time.Second).TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistLock_Concurrent(t *testing.T) {
	_, rdb := newTestRedis(t)

	const concurrency = 20
	var wg sync.WaitGroup
	var holders, maxHolders int32

	start := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ctx := context.Background()
			l := NewDistLock(rdb, "lock:deposit:hot", 5*time.Second)
			ok, err := l.LockWithin(ctx, 2*time.Second, 2*time.Millisecond)
			if err != nil || !ok {
				return
			}
			n := atomic.AddInt32(&holders, 1)
			for {
				m := atomic.LoadInt32(&maxHolders)
				if n <= m || atomic.CompareAndSwapInt32(&maxHolders, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&holders, -1)
			_, _ = l.Unlock(ctx)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), maxHolders, "never more than one holder at a time")
}
