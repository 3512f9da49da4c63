// Package cache opens the Redis connection shared by sessions, pending
// social links and the job queue.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Options address one Redis database.
type Options struct {
	Addr     string
	Password string
	DB       int
}

func (o Options) redis() *redis.Options {
	return &redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

// Asynq returns the same database as an asynq connection option so jobs and
// sessions share one Redis.
func (o Options) Asynq() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

// New creates a Redis client and checks it answers within 5 seconds.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(opts.redis())

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}
