// Package redis opens the instrumented Redis connection used by rate limiting,
// idempotency and the settings cache.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/craft-bot/pkg/config"
)

type Client struct {
	*goredis.Client
}

// New connects with cfg and pings once. Pool stats are registered with the default
// Prometheus registry; a second client in the same process reuses the first registration.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.IdleTimeout,
		MaxRetries:      cfg.MaxRetries,
	})
	rdb.AddHook(hook{})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	if err := prometheus.Register(newPoolCollector(rdb)); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if !errors.As(err, &dup) {
			_ = rdb.Close()
			return nil, fmt.Errorf("register redis pool metrics: %w", err)
		}
	}
	return &Client{rdb}, nil
}
