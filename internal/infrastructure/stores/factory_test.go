package stores

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-gateway/configs"
	"rag-gateway/internal/infrastructure/stores/memory"
	"rag-gateway/internal/infrastructure/stores/redis"
	"rag-gateway/pkg/logger"
)

func TestCreateCacheRepository(t *testing.T) {
	f := NewCacheRepositoryFactory(logger.Nop())
	ctx := context.Background()

	repo, closeFn, err := f.CreateCacheRepository(ctx, &configs.CacheConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.CacheRepository{}, repo)
	assert.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	repo, closeFn, err = f.CreateCacheRepository(ctx, &configs.CacheConfig{
		Backend: "redis",
		Redis:   configs.RedisCacheConfig{Addr: mr.Addr()},
	})
	require.NoError(t, err)
	assert.IsType(t, &redis.CacheRepository{}, repo)
	assert.NoError(t, closeFn())

	_, _, err = f.CreateCacheRepository(ctx, &configs.CacheConfig{Backend: "dynamo"})
	assert.Error(t, err)
}
