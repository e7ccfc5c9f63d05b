// Package redis 提供基于 Redis 的缓存仓储实现
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/repositories"
	"rag-gateway/pkg/logger"
)

var _ repositories.CacheRepository = (*CacheRepository)(nil)

// DefaultKeyPrefix 缓存键默认前缀
const DefaultKeyPrefix = "rag:cache:"

// minExpiration 写入已过期条目时使用的最短物理过期时间
const minExpiration = time.Second

// CacheRepository Redis 缓存仓储。
// 值为 JSON 编码的 CacheEntry，物理过期时间与条目 TTL 对齐，
// 但是否命中仍由上层根据 TTL 判断。
type CacheRepository struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    logger.Logger
}

// NewCacheRepository 创建 Redis 缓存仓储
func NewCacheRepository(client redis.UniversalClient, keyPrefix string, log logger.Logger) *CacheRepository {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if log == nil {
		log = logger.Default()
	}
	return &CacheRepository{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    log,
	}
}

func (r *CacheRepository) redisKey(key string) string {
	return r.keyPrefix + key
}

// Get 读取条目，不存在时返回 (nil, nil)
func (r *CacheRepository) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	entry.Normalize()
	return &entry, nil
}

// Put 整条覆盖写入
func (r *CacheRepository) Put(ctx context.Context, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	expiration := time.Until(entry.ExpiresAt)
	if expiration < minExpiration {
		expiration = minExpiration
	}

	if err := r.client.Set(ctx, r.redisKey(entry.Key), data, expiration).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	r.logger.DebugContext(ctx, "Redis 缓存写入", "key", entry.Key, "expiration", expiration)
	return nil
}

// Delete 删除条目
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping 检查连接
func (r *CacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
