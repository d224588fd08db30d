package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/metrics"
	"coinvault.com/pkg/xredis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker 单条充值记录的互斥锁。等不到锁返回 domain.ErrBusy。
// 不同 id 之间互不影响。
type Locker interface {
	Acquire(ctx context.Context, depositID int64) (release func(), err error)
}

// MemLocker 进程内按 id 分桶的锁，单实例部署用
type MemLocker struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	ch   chan struct{} // 容量 1，放进去即持有
	refs int
}

func NewMemLocker(wait time.Duration) *MemLocker {
	return &MemLocker{wait: wait, slots: make(map[int64]*slot)}
}

func (l *MemLocker) Acquire(ctx context.Context, depositID int64) (func(), error) {
	start := time.Now()
	s := l.ref(depositID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		metrics.DepositLockWait.WithLabelValues("memory", "ok").Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.unref(depositID)
			})
		}, nil
	case <-timer.C:
		l.unref(depositID)
		metrics.DepositLockWait.WithLabelValues("memory", "busy").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: deposit %d locked", domain.ErrBusy, depositID)
	case <-ctx.Done():
		l.unref(depositID)
		return nil, ctx.Err()
	}
}

func (l *MemLocker) ref(id int64) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

// unref 没人等也没人持有时回收，map 不会无限增长
func (l *MemLocker) unref(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[id]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

// RedisLocker 多实例部署用，锁带 ttl，持有者崩溃后自动过期
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	wait   time.Duration
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, wait, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: "lock:deposit:", wait: wait, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, depositID int64) (func(), error) {
	start := time.Now()
	dl := xredis.NewDistLock(l.client, fmt.Sprintf("%s%d", l.prefix, depositID), l.ttl)

	ok, err := dl.LockWithin(ctx, l.wait, 10*time.Millisecond)
	if err != nil {
		metrics.DepositLockWait.WithLabelValues("redis", "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// redis 不可用时调用方无法判断记录状态，按 busy 处理让上游重试
		return nil, fmt.Errorf("%w: lock backend: %v", domain.ErrBusy, err)
	}
	if !ok {
		metrics.DepositLockWait.WithLabelValues("redis", "busy").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: deposit %d locked", domain.ErrBusy, depositID)
	}
	metrics.DepositLockWait.WithLabelValues("redis", "ok").Observe(time.Since(start).Seconds())

	return func() {
		// 请求 ctx 可能已经取消，解锁不能跟着失败
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		released, err := dl.Unlock(unlockCtx)
		if err != nil || !released {
			logger.Warn(ctx, "deposit lock release failed",
				zap.String("key", dl.Key()), zap.Bool("released", released), zap.Error(err))
		}
	}, nil
}
