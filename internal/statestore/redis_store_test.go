package statestore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/evalmesh/pipeline/internal/domain"
)

func newTestStore(t *testing.T) (*RedisStore, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, time.Hour)

	cleanup := func() {
		_ = rdb.Close()
		mr.Close()
	}
	return store, cleanup
}

func TestRedisStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestStore(t)
	defer cleanup()

	rec := domain.ProcessedRequest{
		RequestID: "abc",
		Stage:     domain.StageGateway,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err := store.Create(ctx, "abc", rec)
	require.NoError(t, err)

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, domain.StageGateway, got.Stage)
}

func TestRedisStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisStore_UpdateShallowMerge(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.Create(ctx, "req1", domain.ProcessedRequest{
		RequestID: "req1",
		Stage:     domain.StageGateway,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	updated, err := store.Update(ctx, "req1", func(pr *domain.ProcessedRequest) {
		pr.Stage = domain.StageInference
	})
	require.NoError(t, err)
	require.Equal(t, domain.StageInference, updated.Stage)
	require.Equal(t, "req1", updated.RequestID)

	got, err := store.Get(ctx, "req1")
	require.NoError(t, err)
	require.Equal(t, domain.StageInference, got.Stage)
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.Create(ctx, "req2", domain.ProcessedRequest{RequestID: "req2"})
	require.NoError(t, err)

	existed, err := store.Delete(ctx, "req2")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = store.Delete(ctx, "req2")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestRedisStore_IsHealthy(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newTestStore(t)
	defer cleanup()

	require.True(t, store.IsHealthy(ctx))
}
