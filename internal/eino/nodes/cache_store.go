package nodes

import (
	"context"
	"time"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/repositories"
	"rag-gateway/pkg/logger"
)

// CacheStore 以查询文本为键的答案缓存。
// 所有读写都是尽力而为：存储异常只记录日志，读返回未命中，写返回 false。
type CacheStore struct {
	repo    repositories.CacheRepository
	ttl     time.Duration
	enabled bool
	logger  logger.Logger
	now     func() time.Time
}

// CacheStoreOption CacheStore 可选项
type CacheStoreOption func(*CacheStore)

// WithClock 替换时钟，测试中用于控制过期判断
func WithClock(now func() time.Time) CacheStoreOption {
	return func(s *CacheStore) {
		s.now = now
	}
}

// WithCacheEnabled 设置缓存开关，关闭后读总是未命中、写总是跳过
func WithCacheEnabled(enabled bool) CacheStoreOption {
	return func(s *CacheStore) {
		s.enabled = enabled
	}
}

// NewCacheStore 创建缓存组件，ttl 为默认过期时长
func NewCacheStore(repo repositories.CacheRepository, ttl time.Duration, log logger.Logger, opts ...CacheStoreOption) *CacheStore {
	if log == nil {
		log = logger.Default()
	}
	s := &CacheStore{
		repo:    repo,
		ttl:     ttl,
		enabled: true,
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL 返回默认过期时长
func (s *CacheStore) TTL() time.Duration {
	return s.ttl
}

// Enabled 缓存是否开启
func (s *CacheStore) Enabled() bool {
	return s.enabled
}

// Get 按查询文本读取未过期的缓存条目
func (s *CacheStore) Get(ctx context.Context, query string) (*models.CacheEntry, bool) {
	if !s.enabled {
		return nil, false
	}
	return s.Lookup(ctx, models.QueryKey(query))
}

// Lookup 按键读取未过期的缓存条目。
// 过期条目视为未命中，仓储支持时顺带清理。
func (s *CacheStore) Lookup(ctx context.Context, key string) (*models.CacheEntry, bool) {
	entry, err := s.repo.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "读取缓存失败", "key", key, "error", err)
		return nil, false
	}
	if entry == nil {
		s.logger.DebugContext(ctx, "缓存未命中", "key", key)
		return nil, false
	}

	if now := s.now(); entry.Expired(now) {
		s.logger.DebugContext(ctx, "缓存条目已过期", "key", key, "ttl", entry.TTL)
		s.purge(ctx, key, now)
		return nil, false
	}

	s.logger.DebugContext(ctx, "缓存命中", "key", key)
	return entry, true
}

// Put 写入一次成功运行的结果，ttl 非正时使用默认值。
// 返回是否写入成功。
func (s *CacheStore) Put(ctx context.Context, query string, result *models.PipelineResult, ttl time.Duration) bool {
	if !s.enabled || result == nil {
		return false
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	entry := models.NewCacheEntry(query, result, s.now(), ttl)
	if err := s.repo.Put(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "写入缓存失败", "key", entry.Key, "error", err)
		return false
	}

	s.logger.DebugContext(ctx, "写入缓存成功", "key", entry.Key, "expires_at", entry.ExpiresAt)
	return true
}

// Delete 删除指定键的缓存条目，用于管理接口
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, key)
}

// purge 清理过期条目。只删除删除时刻仍过期的条目，
// 读取之后并发写入的新结果会保留。
func (s *CacheStore) purge(ctx context.Context, key string, now time.Time) {
	purger, ok := s.repo.(repositories.ExpiredPurger)
	if !ok {
		return
	}
	if _, err := purger.DeleteExpired(ctx, key, now); err != nil {
		s.logger.WarnContext(ctx, "删除过期缓存失败", "key", key, "error", err)
	}
}
