// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package redis implements usage.Counter on Redis. Each key is an integer
// with a TTL equal to the window, set on the first increment only.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leseb/docchat-gw/pkg/provider"
	"github.com/leseb/docchat-gw/pkg/usage"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "docchat:usage:"

func init() {
	usage.Providers.Register("redis", func(ctx context.Context, params map[string]string) (usage.Counter, error) {
		window, err := usage.WindowParam(params)
		if err != nil {
			return nil, err
		}
		p := provider.Params(params)
		if err := p.Require("addr"); err != nil {
			return nil, err
		}
		db, err := p.Int("db", 0)
		if err != nil {
			return nil, err
		}
		return New(ctx, Config{
			Addr:     params["addr"],
			Password: params["password"],
			DB:       db,
			Window:   window,
		})
	})
}

// Config holds Redis connection configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	Window   time.Duration
}

// Counter implements usage.Counter using Redis INCR and EXPIRE NX.
type Counter struct {
	client *goredis.Client
	window time.Duration
}

// New connects to Redis and returns a Counter.
func New(ctx context.Context, cfg Config) (*Counter, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Window <= 0 {
		cfg.Window = usage.DefaultWindow
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Counter{client: client, window: cfg.Window}, nil
}

func (c *Counter) Get(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, keyPrefix+key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

// Incr increments the key and opens a window when none is running.
func (c *Counter) Incr(ctx context.Context, key string) (int64, error) {
	k := keyPrefix + key

	var incr *goredis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, c.window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (c *Counter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *Counter) Close() error {
	return c.client.Close()
}
