package xredis

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua 脚本：释放锁
// KEYS[1]: 锁的 key
// ARGV[1]: 锁的 value (token)，防止误删别人的锁
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

type DistLock struct {
	client     redis.UniversalClient
	key        string
	token      string        // 谁加锁谁解锁
	expiration time.Duration // 自动过期时间，持有者崩溃后锁会自己释放
}

func NewDistLock(client redis.UniversalClient, key string, expiration time.Duration) *DistLock {
	return &DistLock{
		client:     client,
		key:        key,
		token:      uuid.NewString(),
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞，一次性）
func (l *DistLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
}

// LockWithin 在 wait 时间内自旋重试，超时返回 false
func (l *DistLock) LockWithin(ctx context.Context, wait, retryInterval time.Duration) (bool, error) {
	if retryInterval <= 0 {
		retryInterval = 10 * time.Millisecond
	}
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return false, nil
		}
		// 随机抖动，防止所有等待者同时唤醒冲击 Redis
		sleep := retryInterval + time.Duration(rand.Intn(5))*time.Millisecond
		if sleep > remain {
			sleep = remain
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// Unlock 安全释放锁；返回 false 表示锁已过期或被别人持有
func (l *DistLock) Unlock(ctx context.Context) (bool, error) {
	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *DistLock) Key() string { return l.key }
