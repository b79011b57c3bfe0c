package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	listKey = "stackwarden:triggers"
	setKey  = "stackwarden:triggers:outstanding"

	// popTimeout bounds each blocking pop so context cancellation is
	// noticed promptly
	popTimeout = time.Second
)

// Redis is the trigger queue for multi-process deployments: every API
// node pushes triggers, every scheduler node competes for them
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed trigger queue
func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client; used by tests with miniredis
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Enqueue pushes a trigger unless one is already outstanding for the
// tenant. The outstanding set makes the push idempotent across processes.
func (r *Redis) Enqueue(ctx context.Context, tenantID string) error {
	added, err := r.client.SAdd(ctx, setKey, tenantID).Result()
	if err != nil {
		return fmt.Errorf("failed to mark trigger outstanding: %w", err)
	}
	if added == 0 {
		// Already queued
		return nil
	}
	if err := r.client.LPush(ctx, listKey, tenantID).Err(); err != nil {
		return fmt.Errorf("failed to push trigger: %w", err)
	}
	return nil
}

// Dequeue blocks until a trigger arrives or the context ends
func (r *Redis) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		res, err := r.client.BRPop(ctx, popTimeout, listKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return "", fmt.Errorf("failed to pop trigger: %w", err)
		}

		// BRPop returns [key, value]
		tenantID := res[1]
		if err := r.client.SRem(ctx, setKey, tenantID).Err(); err != nil {
			return "", fmt.Errorf("failed to clear outstanding trigger: %w", err)
		}
		return tenantID, nil
	}
}

// Close releases the underlying client
func (r *Redis) Close() error {
	return r.client.Close()
}
