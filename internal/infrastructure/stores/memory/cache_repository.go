// Package memory 提供进程内的缓存仓储实现，用于本地开发和测试
package memory

import (
	"context"
	"sync"
	"time"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/repositories"
)

var (
	_ repositories.CacheRepository = (*CacheRepository)(nil)
	_ repositories.ExpiredPurger   = (*CacheRepository)(nil)
)

// CacheRepository 基于 map 的缓存仓储，不做物理过期
type CacheRepository struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// NewCacheRepository 创建内存缓存仓储
func NewCacheRepository() *CacheRepository {
	return &CacheRepository{
		entries: make(map[string]models.CacheEntry),
	}
}

// Get 读取条目，返回副本
func (r *CacheRepository) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	entry.Sources = append([]models.Source(nil), entry.Sources...)
	return &entry, nil
}

// Put 整条覆盖写入
func (r *CacheRepository) Put(ctx context.Context, entry *models.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := *entry
	stored.Sources = append([]models.Source(nil), entry.Sources...)

	r.mu.Lock()
	r.entries[entry.Key] = stored
	r.mu.Unlock()
	return nil
}

// Delete 删除条目
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

// DeleteExpired 条目仍已过期时删除，并发写入的新条目不受影响
func (r *CacheRepository) DeleteExpired(ctx context.Context, key string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok || !entry.Expired(now) {
		return false, nil
	}
	delete(r.entries, key)
	return true, nil
}

// Len 当前条目数
func (r *CacheRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
