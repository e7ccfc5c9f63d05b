// Package stores 根据配置创建缓存仓储
package stores

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"rag-gateway/configs"
	"rag-gateway/internal/domain/repositories"
	"rag-gateway/internal/infrastructure/stores/memory"
	"rag-gateway/internal/infrastructure/stores/redis"
	"rag-gateway/pkg/logger"
)

// CacheRepositoryFactory 缓存仓储工厂
type CacheRepositoryFactory struct {
	logger logger.Logger
}

// NewCacheRepositoryFactory 创建缓存仓储工厂
func NewCacheRepositoryFactory(log logger.Logger) *CacheRepositoryFactory {
	if log == nil {
		log = logger.Default()
	}
	return &CacheRepositoryFactory{logger: log}
}

// CreateCacheRepository 按配置创建缓存仓储，返回的 close 函数用于释放连接。
// Redis 不可达时只记录警告：缓存失败不应阻止服务启动。
func (f *CacheRepositoryFactory) CreateCacheRepository(ctx context.Context, cfg *configs.CacheConfig) (repositories.CacheRepository, func() error, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("cache config cannot be nil")
	}

	switch cfg.Backend {
	case "memory":
		f.logger.InfoContext(ctx, "使用内存缓存")
		return memory.NewCacheRepository(), func() error { return nil }, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		repo := redis.NewCacheRepository(client, cfg.KeyPrefix, f.logger)

		if err := repo.Ping(ctx); err != nil {
			f.logger.WarnContext(ctx, "Redis 缓存连接失败，缓存读写将降级为未命中",
				"addr", cfg.Redis.Addr,
				"error", err)
		} else {
			f.logger.InfoContext(ctx, "Redis 缓存初始化成功", "addr", cfg.Redis.Addr)
		}
		return repo, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
