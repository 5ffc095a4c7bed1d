package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/talk-catalog-crawler/internal/sequence"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]int64
	keys   []string
	err    error
}

func (f *fakeRedis) IncrBy(_ context.Context, key string, value int64) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.values == nil {
		f.values = map[string]int64{}
	}
	f.values[key] += value
	return redis.NewIntResult(f.values[key], nil)
}

func TestNewCounterRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := NewCounter(nil, "")
	require.Error(t, err)
}

func TestIncrementUsesPrefixedKey(t *testing.T) {
	t.Parallel()

	client := &fakeRedis{}
	counter, err := NewCounter(client, "")
	require.NoError(t, err)

	value, err := counter.Increment(context.Background(), "talks", 20)
	require.NoError(t, err)
	require.Equal(t, int64(20), value)
	value, err = counter.Increment(context.Background(), "talks", 20)
	require.NoError(t, err)
	require.Equal(t, int64(40), value)
	require.Equal(t, []string{"sequence:talks", "sequence:talks"}, client.keys)
}

func TestIncrementWrapsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial tcp: connection refused")
	counter, err := NewCounter(&fakeRedis{err: boom}, "catalog:")
	require.NoError(t, err)

	_, err = counter.Increment(context.Background(), "speakers", 1)
	require.True(t, errors.Is(err, boom))
	require.Contains(t, err.Error(), "catalog:speakers")
}

func TestAllocatorOverRedisCounter(t *testing.T) {
	t.Parallel()

	counter, err := NewCounter(&fakeRedis{}, "")
	require.NoError(t, err)
	alloc, err := sequence.New(counter, sequence.Config{BlockSize: 3, CacheEnabled: true}, nil)
	require.NoError(t, err)

	var got []int64
	for range 5 {
		id, err := alloc.Next(context.Background(), "talks")
		require.NoError(t, err)
		got = append(got, id)
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}
