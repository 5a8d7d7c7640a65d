package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"github.com/omni/bridge-relayer/config"
)

const redisTimeout = 5 * time.Second

// Locker grants short-lived exclusive leases on records, so that two relayer
// instances do not submit the same record at the same time.
type Locker interface {
	// Acquire returns ok=false when the lease is held by somebody else.
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

type noopLocker struct{}

func NewNoopLocker() Locker {
	return noopLocker{}
}

func (noopLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the lease only if it is still owned by the caller.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	pool *redis.Pool
	ttl  time.Duration
}

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(redisTimeout),
		redis.DialReadTimeout(redisTimeout),
		redis.DialWriteTimeout(redisTimeout),
	}
}

func NewRedisLocker(cfg *config.RedisConfig) *RedisLocker {
	return &RedisLocker{
		pool: &redis.Pool{
			MaxIdle:     4,
			IdleTimeout: time.Minute,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", cfg.Addr, timeoutDialOptions()...)
			},
		},
		ttl: cfg.LeaseTTL,
	}
}

// Ping checks that the redis server is reachable.
func (l *RedisLocker) Ping(ctx context.Context) error {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("can't connect to redis: %w", err)
	}
	defer conn.Close()
	if _, err = redis.DoContext(conn, ctx, "PING"); err != nil {
		return fmt.Errorf("can't ping redis: %w", err)
	}
	return nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("can't connect to redis: %w", err)
	}
	defer conn.Close()

	_, err = redis.String(redis.DoContext(conn, ctx, "SET", leaseKey(key), token, "NX", "PX", l.ttl.Milliseconds()))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("can't acquire lease %s: %w", key, err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		conn, err := l.pool.GetContext(ctx)
		if err != nil {
			return
		}
		defer conn.Close()
		// an expired lease is reclaimed by redis anyway
		_, _ = releaseScript.DoContext(ctx, conn, leaseKey(key), token)
	}
	return release, true, nil
}

func (l *RedisLocker) Close() error {
	return l.pool.Close()
}

func leaseKey(key string) string {
	return "relayer:lease:" + key
}
