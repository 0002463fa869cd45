package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftsec/fuzzfleet/pkg/errdefs"
)

// Broker keyspace. Per-worker queues are derived with TaskQueue and
// ControlQueue; the result queue and membership hashes are shared.
const (
	ResultQueue   = "results"
	ActiveHash    = "workers:active"
	HealthHash    = "workers:health"
	taskQueuePfx  = "tasks:"
	ctrlQueuePfx  = "control:"
)

// TaskQueue returns the task inbox queue name for a worker
func TaskQueue(workerID string) string { return taskQueuePfx + workerID }

// ControlQueue returns the control inbox queue name for a worker
func ControlQueue(workerID string) string { return ctrlQueuePfx + workerID }

// Config holds broker connection configuration
type Config struct {
	Host     string
	Port     int
	Password string
}

// Addr returns the host:port dial address
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Client is a typed wrapper over the redis primitives the system uses:
// FIFO queues (RPUSH/BLPOP/LPOP) and keyed hashes (HSET/HGETALL/HDEL).
// The broker is trusted for per-queue ordering but not for durability;
// ground truth lives in the store.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to the broker and verifies the connection. A failed
// ping is reported as ErrBrokerUnavailable; both processes treat it as
// fatal at startup.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", cfg.Addr(), errdefs.ErrBrokerUnavailable)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing go-redis client. Used by tests that
// run against miniredis.
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Push appends a payload to the right end of a queue (non-blocking)
func (c *Client) Push(ctx context.Context, queue string, payload []byte) error {
	if err := c.rdb.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", queue, errdefs.ErrBrokerUnavailable)
	}
	return nil
}

// BlockingPop pops from the left end of a queue, blocking up to timeout.
// Returns ok=false when the timeout elapsed with no message.
func (c *Client) BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	vals, err := c.rdb.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blpop %s: %w", queue, errdefs.ErrBrokerUnavailable)
	}
	// BLPOP replies [key, value]
	if len(vals) != 2 {
		return nil, false, fmt.Errorf("blpop %s: unexpected reply length %d", queue, len(vals))
	}
	return []byte(vals[1]), true, nil
}

// Pop pops from the left end of a queue without blocking.
// Returns ok=false when the queue is empty.
func (c *Client) Pop(ctx context.Context, queue string) ([]byte, bool, error) {
	val, err := c.rdb.LPop(ctx, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lpop %s: %w", queue, errdefs.ErrBrokerUnavailable)
	}
	return []byte(val), true, nil
}

// QueueLen returns the current depth of a queue
func (c *Client) QueueLen(ctx context.Context, queue string) (int64, error) {
	n, err := c.rdb.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", queue, errdefs.ErrBrokerUnavailable)
	}
	return n, nil
}

// HashSet stores a field in a keyed hash
func (c *Client) HashSet(ctx context.Context, name, key string, value []byte) error {
	if err := c.rdb.HSet(ctx, name, key, value).Err(); err != nil {
		return fmt.Errorf("hset %s/%s: %w", name, key, errdefs.ErrBrokerUnavailable)
	}
	return nil
}

// HashGetAll returns every field of a keyed hash
func (c *Client) HashGetAll(ctx context.Context, name string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, name).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", name, errdefs.ErrBrokerUnavailable)
	}
	return m, nil
}

// HashDelete removes a field from a keyed hash
func (c *Client) HashDelete(ctx context.Context, name, key string) error {
	if err := c.rdb.HDel(ctx, name, key).Err(); err != nil {
		return fmt.Errorf("hdel %s/%s: %w", name, key, errdefs.ErrBrokerUnavailable)
	}
	return nil
}

// Ping verifies broker connectivity
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", errdefs.ErrBrokerUnavailable)
	}
	return nil
}

// Close releases the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}
