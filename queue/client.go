package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuditQueue is the list that carries audit work items.
const AuditQueue = "audit:queue"

// Client defines the interface for interacting with Redis-based work queues.
type Client interface {
	// Push adds a work item to the end of a queue (LPUSH).
	Push(ctx context.Context, queue string, item WorkItem) error

	// Pop removes and returns a work item from the front of a queue (BRPOP).
	// Blocks until an item is available or context is cancelled, in which
	// case the context error is returned.
	Pop(ctx context.Context, queue string) (*WorkItem, error)

	// Publish sends a result to a pub/sub channel.
	Publish(ctx context.Context, channel string, result Result) error

	// Subscribe creates a subscription to a pub/sub channel.
	// Returns a channel that receives results until the subscription is closed.
	Subscribe(ctx context.Context, channel string) (<-chan Result, error)

	// PushTask appends a ticket task to a target's task list.
	PushTask(ctx context.Context, queue string, task Task) error

	// PopTask removes and returns the oldest task, blocking like Pop.
	// Ticket connectors call it; see the package documentation.
	PopTask(ctx context.Context, queue string) (*Task, error)

	// Heartbeat updates the health key for a worker with a 30s TTL.
	Heartbeat(ctx context.Context, worker string) error

	// GetWorkerCount returns the current number of workers on a queue.
	GetWorkerCount(ctx context.Context, queue string) (int, error)

	// IncrementWorkerCount increments the worker count for a queue.
	IncrementWorkerCount(ctx context.Context, queue string) error

	// DecrementWorkerCount decrements the worker count for a queue.
	DecrementWorkerCount(ctx context.Context, queue string) error

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// PollTimeout bounds each BRPOP round trip so Pop can observe
	// cancellation. Defaults to one second.
	PollTimeout time.Duration
}

// RedisClient implements the Client interface using go-redis/v9.
type RedisClient struct {
	client      *redis.Client
	pollTimeout time.Duration
}

// NewRedisClient creates a new Redis queue client with the given options.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PollTimeout == 0 {
		opts.PollTimeout = time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout
	redisOpts.ContextTimeoutEnabled = true

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client, pollTimeout: opts.PollTimeout}, nil
}

// Push adds a work item to the end of a queue.
func (c *RedisClient) Push(ctx context.Context, queue string, item WorkItem) error {
	if err := item.IsValid(); err != nil {
		return fmt.Errorf("invalid work item: %w", err)
	}
	return c.push(ctx, queue, item)
}

// Pop removes and returns a work item from the front of a queue.
// Blocks until an item is available or context is cancelled.
func (c *RedisClient) Pop(ctx context.Context, queue string) (*WorkItem, error) {
	var item WorkItem
	if err := c.pop(ctx, queue, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// PushTask appends a ticket task to a queue.
func (c *RedisClient) PushTask(ctx context.Context, queue string, task Task) error {
	if err := task.IsValid(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return c.push(ctx, queue, task)
}

// PopTask removes and returns the oldest task from a queue.
func (c *RedisClient) PopTask(ctx context.Context, queue string) (*Task, error) {
	var task Task
	if err := c.pop(ctx, queue, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *RedisClient) push(ctx context.Context, queue string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}
	if err := c.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", queue, err)
	}
	return nil
}

func (c *RedisClient) pop(ctx context.Context, queue string, v any) error {
	for {
		// BRPOP returns [queue_name, value]
		result, err := c.client.BRPop(ctx, c.pollTimeout, queue).Result()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to pop from queue %s: %w", queue, err)
		}
		if len(result) != 2 {
			return fmt.Errorf("unexpected BRPOP result length: %d", len(result))
		}
		if err := json.Unmarshal([]byte(result[1]), v); err != nil {
			return fmt.Errorf("failed to unmarshal queue entry: %w", err)
		}
		return nil
	}
}

// Publish sends a result to a pub/sub channel.
func (c *RedisClient) Publish(ctx context.Context, channel string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a subscription to a pub/sub channel. The returned channel
// is closed when ctx is done or the subscription ends.
func (c *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan Result, error) {
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	resultChan := make(chan Result)

	go func() {
		defer close(resultChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var result Result
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					continue
				}

				select {
				case resultChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return resultChan, nil
}

// Heartbeat updates the health key for a worker with a 30s TTL.
func (c *RedisClient) Heartbeat(ctx context.Context, worker string) error {
	if err := c.client.Set(ctx, HealthKey(worker), "ok", 30*time.Second).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat for worker %s: %w", worker, err)
	}
	return nil
}

// GetWorkerCount returns the current worker count for a queue.
func (c *RedisClient) GetWorkerCount(ctx context.Context, queue string) (int, error) {
	countStr, err := c.client.Get(ctx, WorkersKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get worker count for %s: %w", queue, err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid worker count value: %w", err)
	}
	return count, nil
}

// IncrementWorkerCount increments the worker count for a queue.
func (c *RedisClient) IncrementWorkerCount(ctx context.Context, queue string) error {
	if err := c.client.Incr(ctx, WorkersKey(queue)).Err(); err != nil {
		return fmt.Errorf("failed to increment worker count for %s: %w", queue, err)
	}
	return nil
}

// DecrementWorkerCount decrements the worker count for a queue.
func (c *RedisClient) DecrementWorkerCount(ctx context.Context, queue string) error {
	if err := c.client.Decr(ctx, WorkersKey(queue)).Err(); err != nil {
		return fmt.Errorf("failed to decrement worker count for %s: %w", queue, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// ResultChannel returns the pub/sub channel that carries a job's result.
func ResultChannel(jobID string) string {
	return KeyName("results", jobID)
}

// HealthKey returns the heartbeat key of a worker.
func HealthKey(worker string) string {
	return KeyName("worker", worker, "health")
}

// WorkersKey returns the worker counter of a queue.
func WorkersKey(queue string) string {
	return KeyName(queue, "workers")
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// TaskQueue returns the task list for an integration target,
// e.g. "Monday.com" -> "integration:monday-com:tasks".
func TaskQueue(target string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(target), "-"), "-")
	return KeyName("integration", slug, "tasks")
}

// KeyName joins key parts with the ':' separator.
func KeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
