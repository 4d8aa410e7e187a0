package testkit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// Logical Redis databases. The persisted series and the asynq queue share one
// instance, so resetting stored data never drops queued load tasks.
const (
	StorageDB = 0
	QueueDB   = 1
)

// RedisModule is the Redis instance behind the durable KV store and the task queue.
type RedisModule struct {
	container testcontainers.Container
	addr      string
}

// Addr returns the host:port of the instance.
func (r *RedisModule) Addr() string { return r.addr }

// Options returns client options for the logical database db.
func (r *RedisModule) Options(db int) *redis.Options {
	return &redis.Options{Addr: r.addr, DB: db}
}

// Terminate stops the container, if one was started.
func (r *RedisModule) Terminate(ctx context.Context) error {
	if r.container == nil {
		return nil
	}
	return r.container.Terminate(ctx)
}

// StartRedis starts a Redis container, or reuses cfg.RedisAddr when it is set.
func StartRedis(ctx context.Context, cfg *Config) (*RedisModule, error) {
	if cfg.RedisAddr != "" {
		return &RedisModule{addr: cfg.RedisAddr}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()

	ctr, err := tcredis.Run(ctx, cfg.RedisImage, tcredis.WithLogLevel(tcredis.LogLevelWarning))
	if err != nil {
		return nil, fmt.Errorf("start ratefeed redis: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx)
	if err != nil {
		_ = ctr.Terminate(context.Background())
		return nil, fmt.Errorf("redis connection string: %w", err)
	}

	// go-redis and asynq are configured with host:port, not redis:// URLs.
	addr, err := extractAddr(connStr)
	if err != nil {
		_ = ctr.Terminate(context.Background())
		return nil, fmt.Errorf("parse redis connection string %q: %w", connStr, err)
	}
	return &RedisModule{container: ctr, addr: addr}, nil
}

func extractAddr(connStr string) (string, error) {
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		return "", err
	}
	return opts.Addr, nil
}
