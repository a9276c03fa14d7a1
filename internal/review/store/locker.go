package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants exclusive acquisition of a token resource for the duration of
// a write-path transaction. The release func must always be called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ShardLocker serializes on in-process sharded mutexes. Sufficient for a
// single instance; multi-instance deployments on the memory store need the
// Redis locker instead.
type ShardLocker struct {
	shards [numShards]sync.Mutex
}

func NewShardLocker() *ShardLocker {
	return &ShardLocker{}
}

func (l *ShardLocker) Acquire(_ context.Context, key string) (func(), error) {
	shard := &l.shards[shardFor(key)]
	shard.Lock()
	return shard.Unlock, nil
}

const (
	redisLockPrefix = "worksign:lock:jti:"
	redisLockTTL    = 10 * time.Second
	redisLockRetry  = 25 * time.Millisecond
)

// RedisLocker implements Locker as a Redis lease: SET NX with a TTL, deleted
// on release only if the lease value still matches (a stale holder never
// releases a successor's lock).
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := redisLockPrefix + key
	lease := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, lease, redisLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire token lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisLockRetry):
		}
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(ctx, l.client, []string{lockKey}, lease).Result()
	}
	return release, nil
}
