package backpressure

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// GlobalWindow shares the global bandwidth counters across processes.
// Incr adds delta to the named counter and returns the new value; a delta
// of zero reads the current value. The ttl bounds the window width: a
// counter created by an Incr expires after ttl, which is what resets the
// shared window.
type GlobalWindow interface {
	Incr(ctx context.Context, field string, delta int64, ttl time.Duration) (int64, error)
}

// Evaler abstracts the minimal Redis surface the window needs. *redis.Client
// satisfies it through the wrapper below; tests supply fakes.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// globalWindowScript increments the counter and stamps the expiry only when
// the key is created, so the window width is measured from first use.
const globalWindowScript = `
local v = redis.call('INCRBY', KEYS[1], ARGV[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return v
`

// RedisWindow implements GlobalWindow on Redis via a small Lua script, so
// increment and expiry stamping stay atomic.
type RedisWindow struct {
	client Evaler
	prefix string
}

// NewRedisWindow wraps an Evaler. prefix namespaces the counter keys;
// empty defaults to "verbatim:gw".
func NewRedisWindow(client Evaler, prefix string) *RedisWindow {
	if prefix == "" {
		prefix = "verbatim:gw"
	}
	return &RedisWindow{client: client, prefix: prefix}
}

// NewRedisWindowAddr dials addr with go-redis and wraps it.
func NewRedisWindowAddr(addr string) *RedisWindow {
	return NewRedisWindow(goRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}, "")
}

func (r *RedisWindow) Incr(ctx context.Context, field string, delta int64, ttl time.Duration) (int64, error) {
	key := r.prefix + ":" + field
	res, err := r.client.Eval(ctx, globalWindowScript, []string{key}, delta, ttl.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("redis incr %s: unexpected reply %T", key, res)
	}
	return n, nil
}

type goRedisEvaler struct{ c *redis.Client }

func (g goRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}
