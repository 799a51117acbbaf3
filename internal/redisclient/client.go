package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const lockRetryInterval = 25 * time.Millisecond

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping failed: %w", models.ErrConnectivity, err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrConnectivity, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Locker is a distributed per-key lock. Each holder owns a random token and
// only the owner can release; the TTL frees keys of crashed holders.
type Locker struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewLocker creates a Locker whose keys expire after ttl
func (c *Client) NewLocker(ttl time.Duration) *Locker {
	return &Locker{
		client: c,
		ttl:    ttl,
		logger: util.Named("redis-lock"),
	}
}

// Lock polls SET NX until the key is acquired or ctx is done
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("lock:%s", key)
	token := uuid.New().String()

	for {
		ok, err := l.client.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: acquire lock %s: %w", models.ErrConnectivity, key, err)
		}
		if ok {
			return func() { l.release(lockKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (l *Locker) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.client.releaseScript.Run(ctx, l.client.rdb, []string{lockKey}, token).Err(); err != nil {
		l.logger.Error("Failed to release lock", zap.String("key", lockKey), zap.Error(err))
	}
}

// Claim stores an idempotency key with TTL. It returns false when the key
// was already claimed.
func (c *Client) Claim(ctx context.Context, scope, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(scope, key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: claim idempotency key: %w", models.ErrConnectivity, err)
	}
	return ok, nil
}

// Forget drops an idempotency key so the request can be retried
func (c *Client) Forget(ctx context.Context, scope, key string) error {
	if err := c.rdb.Del(ctx, idempotencyKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("%w: forget idempotency key: %w", models.ErrConnectivity, err)
	}
	return nil
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}
