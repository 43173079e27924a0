package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

const (
	keyNamespace      = "minierp"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	statePrefix       = "state"
	lockPrefix        = "lock"
)

// ErrNotInitialized is returned by every call on a Client built without a
// connection.
var ErrNotInitialized = errors.New("redis client not initialized")

// incrWithTTL bumps a counter and arms its expiry in one round trip, so a
// crash between the two can never leave a counter that lives forever.
var incrWithTTL = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

var deleteIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the console's handle on Redis: throttling counters, idempotent
// replay records, optional state storage and the maintenance lock.
type Client struct {
	raw *redis.Client
}

// IdempotencyStore is what the idempotency middleware needs.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New connects with pooling and timeouts from cfg and pings once.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_addr", opts.Addr), "redis connection established")
	}
	return &Client{raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

func (c *Client) ready() error {
	if c == nil || c.raw == nil {
		return ErrNotInitialized
	}
	return nil
}

// Set stores value under key; a zero ttl keeps it until deleted.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.raw.Set(ctx, key, value, ttl).Err()
}

// Get returns the value at key, or redis.Nil when it is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.raw.Get(ctx, key).Result()
}

// SetNX stores value only if key is free and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.raw.SetNX(ctx, key, value, ttl).Result()
}

// IncrWithTTL increments key; the first increment starts its ttl window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return incrWithTTL.Run(ctx, c.raw, []string{key}, ttl.Milliseconds()).Int64()
}

// DelIfValue removes key only while it still holds value, in one round trip.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := deleteIfOwner.Run(ctx, c.raw, []string{key}, value).Int64()
	return n == 1, err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.raw.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.raw.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

// StateKey namespaces a console state key (profile/<id>/session and so on).
func (c *Client) StateKey(key string) string {
	return buildKey(statePrefix, key)
}

// LockKey names a lock shared by every replica of one environment.
func (c *Client) LockKey(name, env string) string {
	return buildKey(lockPrefix, name, env)
}

func buildKey(parts ...string) string {
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
