package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindnest/auth-service/internal/infrastructure/ratelimit"
)

const keyPrefix = "ratelimit:"

// incrWindow bumps the counter and arms its expiry on the first hit of a
// window. Returns {count, remaining ttl in ms}.
var incrWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

var _ ratelimit.Store = (*RateLimitStore)(nil)

// RateLimitStore shares rate-limit counters across instances.
// Key format: ratelimit:<policy>:<caller>
type RateLimitStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRateLimitStore creates a RateLimitStore wrapping the given Redis client.
func NewRateLimitStore(client *redis.Client) *RateLimitStore {
	return &RateLimitStore{client: client, now: time.Now}
}

// Increment implements ratelimit.Store.
func (s *RateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	res, err := incrWindow.Run(ctx, s.client, []string{keyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("rate limit increment: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("rate limit increment: unexpected reply %v", res)
	}
	return res[0], s.now().Add(time.Duration(res[1]) * time.Millisecond), nil
}

// Ping reports whether the backing server is reachable.
func (s *RateLimitStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
