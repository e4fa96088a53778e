package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ewaste-exchange/internal/config"
	"github.com/example/ewaste-exchange/internal/logger"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyNamespace      = "ewaste"
	idempotencyPrefix = "idem"
)

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *goredis.StatusCmd
	Get(context.Context, string) *goredis.StringCmd
	Set(context.Context, string, any, time.Duration) *goredis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *goredis.BoolCmd
	Del(context.Context, ...string) *goredis.IntCmd
}

// Client wraps the few Redis commands the API needs.
type Client struct {
	store cmdable
	raw   *goredis.Client
}

// New connects to REDIS_URL and verifies the connection. An empty URL is an
// error; callers treat Redis as optional and skip New in that case.
func New(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := goredis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if log != nil {
		log.Info(ctx, "redis connected", map[string]any{"addr": opts.Addr})
	}
	return &Client{store: raw, raw: raw}, nil
}

func newClient(store cmdable) *Client {
	return &Client{store: store}
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

// Get returns the value at key. A missing key is reported as ok=false, not
// as an error.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	if c == nil || c.store == nil {
		return "", false, errNotInitialized
	}
	val, err := c.store.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// SetNX sets key only if it does not exist and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if c == nil || c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Del(ctx, keys...).Err()
}

// IdempotencyKey namespaces an Idempotency-Key header value under its scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return strings.Join([]string{keyNamespace, idempotencyPrefix, scope, id}, ":")
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
