package lock

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "mergelock:"

// releaseScript deletes a lock key only when it still holds our token, so an
// expired lock re-acquired by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a PairLocker backed by per-id SETNX keys with a TTL. The TTL is a
// crash backstop; normal operation releases explicitly.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{client: client, ttl: ttl}
}

// NewRedisClient creates a go-redis client from a URL such as
// redis://localhost:6379/0.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func (r *Redis) Acquire(ctx context.Context, a, b uuid.UUID) (ReleaseFunc, error) {
	first, second := orderedPair(a, b)
	token := uuid.NewString()
	keys := []string{keyPrefix + first.String(), keyPrefix + second.String()}

	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			r.releaseKeys(ctx, acquired, token)
			return nil, err
		}
		if !ok {
			r.releaseKeys(ctx, acquired, token)
			return nil, ErrLocked
		}
		acquired = append(acquired, key)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Detached from the request context so rollback paths with a
			// cancelled context still release the lock.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			r.releaseKeys(releaseCtx, keys, token)
		})
	}
	return release, nil
}

func (r *Redis) releaseKeys(ctx context.Context, keys []string, token string) {
	for _, key := range keys {
		_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
	}
}
