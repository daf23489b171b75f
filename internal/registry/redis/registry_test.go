package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRegistry(client, zap.NewNop()), mr
}

func TestRegistryUpsertListRemove(t *testing.T) {
	t.Parallel()

	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	item := bookmarks.ProcessingItem{
		ID:     "abc123",
		UserID: "user-1",
		URL:    "https://example.com",
		Step:   bookmarks.StepScraping,
		Status: bookmarks.StatusLoading,
	}
	require.NoError(t, reg.Upsert(ctx, item))
	assert.True(t, mr.Exists(itemKey("abc123")))

	item.Step = bookmarks.StepScreenshot
	item.Title = "Example"
	require.NoError(t, reg.Upsert(ctx, item))

	items, err := reg.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, bookmarks.StepScreenshot, items[0].Step)
	assert.Equal(t, "Example", items[0].Title)

	require.NoError(t, reg.Remove(ctx, "abc123"))
	items, err = reg.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.False(t, mr.Exists(itemKey("abc123")))

	// Removing again is idempotent.
	require.NoError(t, reg.Remove(ctx, "abc123"))
}

func TestRegistryCancelFlag(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	item := bookmarks.ProcessingItem{ID: "run-1", UserID: "user-1", Status: bookmarks.StatusLoading}
	require.NoError(t, reg.Upsert(ctx, item))
	assert.False(t, reg.IsCancelled(ctx, "run-1"))

	require.NoError(t, reg.MarkCancelled(ctx, "run-1"))
	assert.True(t, reg.IsCancelled(ctx, "run-1"))

	items, err := reg.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, items, "cancelled item must not surface")

	reg.ClearCancelled(ctx, "run-1")
	assert.False(t, reg.IsCancelled(ctx, "run-1"))
}

func TestRegistryDegradesWhenRedisDown(t *testing.T) {
	t.Parallel()

	reg, mr := newTestRegistry(t)
	ctx := context.Background()
	mr.Close()

	// Best-effort semantics: operations succeed from the caller's point of
	// view even with the backend gone.
	require.NoError(t, reg.Upsert(ctx, bookmarks.ProcessingItem{ID: "x", UserID: "u"}))
	items, err := reg.List(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, reg.Remove(ctx, "x"))
	require.NoError(t, reg.MarkCancelled(ctx, "x"))
	assert.False(t, reg.IsCancelled(ctx, "x"))
}
