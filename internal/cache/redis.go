package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/linkstat/internal/config"
)

const (
	DefaultLinkTTL    = time.Hour
	DefaultVisitorTTL = 24 * time.Hour
)

// TTLs controls expiry of cached links and visitor sets.
type TTLs struct {
	Link    time.Duration
	Visitor time.Duration
}

// Redis is a Cache backed by a go-redis client.
type Redis struct {
	client *redis.Client
	ttls   TTLs
	logger *slog.Logger
}

// NewRedis wraps an existing client. Zero TTLs fall back to the defaults.
func NewRedis(client *redis.Client, ttls TTLs, logger *slog.Logger) *Redis {
	if ttls.Link <= 0 {
		ttls.Link = DefaultLinkTTL
	}
	if ttls.Visitor <= 0 {
		ttls.Visitor = DefaultVisitorTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttls: ttls, logger: logger}
}

// Connect dials Redis and verifies it with a PING. When Redis cannot be reached
// the process runs with Noop for its whole lifetime; there is no reconnect loop.
func Connect(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) Cache {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := newClient(cfg)
	if err != nil {
		logger.Warn("redis disabled, invalid configuration", "error", err)
		return Noop{}
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("redis unreachable, running without cache", "error", err)
		return Noop{}
	}

	logger.Info("redis connection established", "addr", client.Options().Addr)
	return NewRedis(client, TTLs{Link: cfg.LinkTTL, Visitor: cfg.VisitorTTL}, logger)
}

func newClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return redis.NewClient(opts), nil
}

func (c *Redis) GetLink(ctx context.Context, code string) (string, bool) {
	destination, err := c.client.Get(ctx, linkKey(code)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(ctx, "get link", code, err)
		}
		return "", false
	}
	return destination, true
}

func (c *Redis) PutLink(ctx context.Context, code, destination string) {
	if err := c.client.Set(ctx, linkKey(code), destination, c.ttls.Link).Err(); err != nil {
		c.warn(ctx, "put link", code, err)
	}
}

func (c *Redis) InvalidateLink(ctx context.Context, code string) {
	if err := c.client.Del(ctx, linkKey(code)).Err(); err != nil {
		c.warn(ctx, "invalidate link", code, err)
	}
}

func (c *Redis) HasVisited(ctx context.Context, code, fingerprint string) bool {
	seen, err := c.client.SIsMember(ctx, visitorKey(code), fingerprint).Result()
	if err != nil {
		c.warn(ctx, "has visited", code, err)
		return false
	}
	return seen
}

// MarkVisited adds the fingerprint and refreshes the set's expiry in one round trip.
func (c *Redis) MarkVisited(ctx context.Context, code, fingerprint string) {
	key := visitorKey(code)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, fingerprint)
		pipe.Expire(ctx, key, c.ttls.Visitor)
		return nil
	})
	if err != nil {
		c.warn(ctx, "mark visited", code, err)
	}
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) warn(ctx context.Context, action, code string, err error) {
	c.logger.WarnContext(ctx, "cache operation failed",
		"action", action,
		"code", code,
		"error", err,
	)
}

var _ Cache = (*Redis)(nil)
