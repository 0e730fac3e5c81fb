package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"laundry-dispatch/internal/clock"
)

func TestTokenBucketLimiter_BurstThenRefill(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Unix(0, 0))
	l := NewTokenBucketLimiter(clk, Config{Rate: 2, Burst: 2})

	require.True(t, l.Take("courier:1").Allowed)
	require.True(t, l.Take("courier:1").Allowed)

	d := l.Take("courier:1")
	require.False(t, d.Allowed)
	require.Equal(t, 500*time.Millisecond, d.RetryAfter)

	clk.Advance(250 * time.Millisecond)
	d = l.Take("courier:1")
	require.False(t, d.Allowed)
	require.Equal(t, 250*time.Millisecond, d.RetryAfter)

	clk.Advance(250 * time.Millisecond)
	require.True(t, l.Take("courier:1").Allowed)

	// простой не копит больше burst
	clk.Advance(time.Minute)
	require.True(t, l.Take("courier:1").Allowed)
	require.True(t, l.Take("courier:1").Allowed)
	require.False(t, l.Take("courier:1").Allowed)
}

func TestTokenBucketLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := NewTokenBucketLimiter(clock.NewManual(time.Unix(0, 0)), Config{Rate: 1, Burst: 1})

	require.True(t, l.Take("courier:1").Allowed)
	require.False(t, l.Take("courier:1").Allowed)
	require.True(t, l.Take("courier:2").Allowed)
	require.Equal(t, 2, l.Len())
}

func TestTokenBucketLimiter_EvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Unix(0, 0))
	l := NewTokenBucketLimiter(clk, Config{Rate: 10, Burst: 1, TTL: 10 * time.Second})

	l.Take("a")
	l.Take("b")
	require.Equal(t, 2, l.Len())

	clk.Advance(6 * time.Second)
	l.Take("b")
	require.Equal(t, 2, l.Len(), "a is idle for less than the TTL")

	clk.Advance(6 * time.Second)
	l.Take("b")
	require.Equal(t, 1, l.Len())
	_, ok := l.buckets["a"]
	require.False(t, ok)
}

func TestTokenBucketLimiter_MaxBuckets(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Unix(0, 0))
	l := NewTokenBucketLimiter(clk, Config{Rate: 1, Burst: 5, MaxBuckets: 1, TTL: time.Minute})

	require.True(t, l.Take("a").Allowed)
	d := l.Take("b")
	require.False(t, d.Allowed)
	require.Equal(t, time.Second, d.RetryAfter)
	require.True(t, l.Take("a").Allowed)

	// идл-бакет уступает место новому ключу
	clk.Advance(2 * time.Minute)
	require.True(t, l.Take("b").Allowed)
	require.Equal(t, 1, l.Len())
}

func TestTokenBucketLimiter_Defaults(t *testing.T) {
	t.Parallel()

	l := NewTokenBucketLimiter(nil, Config{})
	require.True(t, l.Take("x").Allowed)
	require.False(t, l.Take("x").Allowed)
}

func TestNopLimiter(t *testing.T) {
	t.Parallel()

	require.True(t, NopLimiter{}.Take("anything").Allowed)
}
