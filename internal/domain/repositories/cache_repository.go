package repositories

import (
	"context"
	"time"

	"rag-gateway/internal/domain/models"
)

// CacheRepository 缓存持久化接口
// 只负责按键读写整条记录，过期判断由上层完成
type CacheRepository interface {
	// Get 按键读取条目，不存在时返回 (nil, nil)
	Get(ctx context.Context, key string) (*models.CacheEntry, error)

	// Put 整条覆盖写入
	Put(ctx context.Context, entry *models.CacheEntry) error

	// Delete 删除条目，不存在时不报错
	Delete(ctx context.Context, key string) error
}

// ExpiredPurger 可选能力：仅当条目在 now 时刻仍已过期时才删除，检查与删除是原子的。
// 未实现该接口的仓储（如 Redis）依赖自身的物理过期回收。
type ExpiredPurger interface {
	DeleteExpired(ctx context.Context, key string, now time.Time) (bool, error)
}
