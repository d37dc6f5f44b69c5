// Package redis implements the book mirror, decision bus and distributed
// lock on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// healthTimeout bounds one health probe so a hung server cannot stall the
// health endpoint.
const healthTimeout = 2 * time.Second

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client owns the connection pool shared by the bus, the mirror and the
// lock manager.
type Client struct {
	rdb  *redis.Client
	addr string
}

// New connects and verifies the server answers before returning.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(options(cfg))
	c := &Client{rdb: rdb, addr: cfg.Addr}
	if err := c.Health(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

func options(cfg ClientConfig) *redis.Options {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Health pings the server within healthTimeout. Failures wrap
// domain.ErrStore so callers can tell them from request errors.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w: %w", c.addr, domain.ErrStore, err)
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the go-redis client for the bus, mirror and lock.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
