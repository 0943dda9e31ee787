package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"pdf-rag-go/pkg/log"
)

// 只有持有者（token 一致）才能删除锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 只有持有者才能续期
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker 用 SET NX PX 实现跨进程的按键锁。TTL 用于持有者崩溃后自动释放，
// 持有期间每 ttl/3 续期一次，长时间的入库不会因为 TTL 到期而丢锁。
type RedisLocker struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	retryWait  time.Duration
	renewEvery time.Duration
}

// NewRedisLocker 创建 Redis 锁，键为 prefix+key。
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLocker{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		retryWait:  100 * time.Millisecond,
		renewEvery: ttl / 3,
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Lock 轮询 SETNX 直到成功或 ctx 结束。
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("生成锁 token 失败: %w", err)
	}
	redisKey := l.prefix + key

	ticker := time.NewTicker(l.retryWait)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("获取 Redis 锁 %s 失败: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token, stop, done) })
	}, nil
}

// keepAlive 定期续期，直到 stop 关闭或锁已不属于自己。
func (l *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := l.renewEvery
	if every <= 0 {
		every = l.ttl
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := renewScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			// 暂时性错误，下个周期重试
			log.Warnf("[Lock] 续期 Redis 锁 %s 失败: %v", redisKey, err)
			continue
		}
		if n == 0 {
			log.Warnf("[Lock] Redis 锁 %s 已不属于当前持有者, 停止续期", redisKey)
			return
		}
	}
}

func (l *RedisLocker) release(redisKey, token string, stop chan struct{}, done <-chan struct{}) {
	close(stop)
	<-done
	// 使用独立的上下文，调用方的 ctx 可能已经取消
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
		log.Warnf("[Lock] 释放 Redis 锁 %s 失败: %v", redisKey, err)
	}
}
