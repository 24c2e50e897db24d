package cooldown

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lifeguard:cooldown:"

// releaseScript deletes the key only if it still holds the caller's stamp.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore shares cooldown state between instances. Expiry uses the Redis
// server clock; the caller's now is only stored as the stamp.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func key(userID string) string {
	return keyPrefix + userID
}

func stamp(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func (s *RedisStore) Admit(ctx context.Context, userID string, now time.Time, window time.Duration, force bool) (time.Duration, bool, error) {
	k := key(userID)
	if force {
		if err := s.client.Set(ctx, k, stamp(now), window).Err(); err != nil {
			return 0, false, fmt.Errorf("redis set cooldown: %w", err)
		}
		return 0, true, nil
	}

	// Two rounds cover a key expiring between SETNX and PTTL.
	for i := 0; i < 2; i++ {
		ok, err := s.client.SetNX(ctx, k, stamp(now), window).Result()
		if err != nil {
			return 0, false, fmt.Errorf("redis setnx cooldown: %w", err)
		}
		if ok {
			return 0, true, nil
		}
		ttl, err := s.client.PTTL(ctx, k).Result()
		if err != nil {
			return 0, false, fmt.Errorf("redis pttl cooldown: %w", err)
		}
		if ttl > 0 {
			return ttl, false, nil
		}
	}
	return 0, false, fmt.Errorf("redis cooldown key %s has no expiry", k)
}

func (s *RedisStore) Release(ctx context.Context, userID string, at time.Time) error {
	if err := releaseScript.Run(ctx, s.client, []string{key(userID)}, stamp(at)).Err(); err != nil {
		return fmt.Errorf("redis release cooldown: %w", err)
	}
	return nil
}

// Ping checks the connection; used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
