package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps counters in memory and tracks TTL writes
type fakeRedis struct {
	counts     map[string]int64
	hasTTL     map[string]bool
	ttlApplied map[string]int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		counts:     make(map[string]int64),
		hasTTL:     make(map[string]bool),
		ttlApplied: make(map[string]int),
	}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := f.counts[key]; ok {
		cmd.SetVal(strconv.FormatInt(v, 10))
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeRedis) ExpireNX(ctx context.Context, key string, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if f.hasTTL[key] {
		cmd.SetVal(false)
		return cmd
	}
	f.hasTTL[key] = true
	f.ttlApplied[key]++
	cmd.SetVal(true)
	return cmd
}

func TestLimiterBlocksAfterWindowFills(t *testing.T) {
	fake := newFakeRedis()
	l := &Limiter{client: fake}
	ctx := context.Background()

	for i := 0; i < maxRequestsPerWindow; i++ {
		exceeded, err := l.CheckIPRateLimit(ctx, "203.0.113.9", "login")
		require.NoError(t, err)
		require.False(t, exceeded)
		require.NoError(t, l.RecordIPRequest(ctx, "203.0.113.9", "login"))
	}

	exceeded, err := l.CheckIPRateLimit(ctx, "203.0.113.9", "login")
	require.NoError(t, err)
	assert.True(t, exceeded)

	// Other IPs and other purposes count separately
	exceeded, err = l.CheckIPRateLimit(ctx, "203.0.113.10", "login")
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = l.CheckIPRateLimit(ctx, "203.0.113.9", "register")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestWindowExpirySetOnlyOnce(t *testing.T) {
	fake := newFakeRedis()
	l := &Limiter{client: fake}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.RecordIPRequest(ctx, "203.0.113.9", "login"))
	}

	// Repeated hits must not refresh the TTL, or the window never closes
	key := getIPKey("203.0.113.9", "login")
	assert.Equal(t, 1, fake.ttlApplied[key])
	assert.Equal(t, int64(5), fake.counts[key])
}
