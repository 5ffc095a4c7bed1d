// Package redis provides a sequence counter backed by Redis INCRBY.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces sequence keys.
const DefaultKeyPrefix = "sequence:"

type incrementer interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
}

// Counter implements crawler.SequenceCounter. INCRBY creates missing keys at
// zero, so the first reservation returns amount.
type Counter struct {
	client incrementer
	prefix string
}

// NewClient dials addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// NewCounter wraps a Redis client.
func NewCounter(client incrementer, prefix string) (*Counter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Counter{client: client, prefix: prefix}, nil
}

func (c *Counter) key(sequence string) string {
	return fmt.Sprintf("%s%s", c.prefix, sequence)
}

// Increment adds amount to the sequence's key and returns the new value.
func (c *Counter) Increment(ctx context.Context, sequence string, amount int64) (int64, error) {
	value, err := c.client.IncrBy(ctx, c.key(sequence), amount).Result()
	if err != nil {
		return 0, fmt.Errorf("incrby %s: %w", c.key(sequence), err)
	}
	return value, nil
}
