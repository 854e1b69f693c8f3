package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseGuard(t *testing.T, a, b RunGuard) {
	t.Helper()
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, ok, "second executor must not claim a held run")

	active, err := b.Active(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, a.Refresh(ctx, "run-1"))
	assert.Error(t, b.Refresh(ctx, "run-1"))

	// 非持有者释放不影响占用
	require.NoError(t, b.Release(ctx, "run-1"))
	active, err = a.Active(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, a.Release(ctx, "run-1"))
	active, err = a.Active(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, active)

	ok, err = b.Acquire(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryRunGuard(t *testing.T) {
	g := NewMemoryRunGuard()
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Refresh(ctx, "run-1"))
	require.NoError(t, g.Release(ctx, "run-1"))
	assert.Error(t, g.Refresh(ctx, "run-1"))

	active, err := g.Active(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisRunGuard_TwoProcesses(t *testing.T) {
	_, rdb := newMiniredis(t)
	exerciseGuard(t, NewRedisRunGuard(rdb, time.Minute), NewRedisRunGuard(rdb, time.Minute))
}

func TestRedisRunGuard_ClaimExpires(t *testing.T) {
	mr, rdb := newMiniredis(t)
	ctx := context.Background()
	crashed := NewRedisRunGuard(rdb, time.Minute)
	other := NewRedisRunGuard(rdb, time.Minute)

	ok, err := crashed.Acquire(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	active, err := other.Active(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, active)

	ok, err = other.Acquire(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, crashed.Refresh(ctx, "run-1"), "expired holder must not extend another claim")
}

func TestRedisRunGuard_RefreshExtendsTTL(t *testing.T) {
	mr, rdb := newMiniredis(t)
	ctx := context.Background()
	g := NewRedisRunGuard(rdb, time.Minute)

	ok, err := g.Acquire(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(45 * time.Second)
	require.NoError(t, g.Refresh(ctx, "run-1"))
	mr.FastForward(45 * time.Second)

	active, err := g.Active(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, active)
}
