package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumaflow/luma/types"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStoreAddGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestRedisStore(t)

	rec := &types.MemoryRecord{
		Content:    "api key rotation every 90 days",
		Importance: 0.8,
		Tags:       []string{"security"},
	}
	require.NoError(t, store.Add(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.Importance, got.Importance)
	assert.Equal(t, types.TierDurable, got.Tier)
}

func TestRedisStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := newTestRedisStore(t)
	_, err := store.Get(context.Background(), "mem_missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrMemoryNotFound, types.GetErrorCode(err))
}

func TestRedisStoreSearchOrdersByScore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestRedisStore(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	require.NoError(t, store.Add(ctx, &types.MemoryRecord{Content: "release notes drafted", Importance: 0.4}))
	require.NoError(t, store.Add(ctx, &types.MemoryRecord{Content: "release blocked by QA", Importance: 0.9}))
	require.NoError(t, store.Add(ctx, &types.MemoryRecord{Content: "unrelated chatter", Importance: 0.9}))

	hits, err := store.Search(ctx, "release", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "release blocked by QA", hits[0].Content)
	assert.Equal(t, "release notes drafted", hits[1].Content)

	hits, err = store.Search(ctx, "release", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRedisStoreUpdateDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestRedisStore(t)

	rec := &types.MemoryRecord{Content: "draft"}
	require.NoError(t, store.Add(ctx, rec))

	rec.Content = "final"
	require.NoError(t, store.Update(ctx, rec))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Content)

	err = store.Update(ctx, &types.MemoryRecord{ID: "mem_missing"})
	require.Error(t, err)
	assert.Equal(t, types.ErrMemoryNotFound, types.GetErrorCode(err))

	removed, err := store.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}
