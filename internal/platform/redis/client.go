package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solrelay/internal/platform/config"
)

// Client is the shared connection pool behind the durable KV backend.
type Client struct {
	*redis.Client
	endpoint string
}

// New returns nil, nil when no URL is configured. The pool dials lazily, so an
// unreachable server does not block startup; the KV layer degrades to memory.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.MaxRetries = cfg.MaxRetries
	for _, o := range []struct {
		dst *time.Duration
		v   time.Duration
	}{
		{&opts.DialTimeout, cfg.DialTimeout},
		{&opts.ReadTimeout, cfg.ReadTimeout},
		{&opts.WriteTimeout, cfg.WriteTimeout},
	} {
		if o.v > 0 {
			*o.dst = o.v
		}
	}

	return &Client{
		Client:   redis.NewClient(opts),
		endpoint: fmt.Sprintf("%s/%d", opts.Addr, opts.DB),
	}, nil
}

// Endpoint is host:port/db without credentials, safe to log.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Check reports whether a round trip to the server succeeds.
func (c *Client) Check(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
