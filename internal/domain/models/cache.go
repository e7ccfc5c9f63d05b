package models

import (
	"time"
)

// CacheEntry 缓存中的一条记录。
// 每次 put 都是整条覆盖，写入后不再修改。
type CacheEntry struct {
	// Key 去除首尾空白后查询文本的 SHA-256 摘要
	Key string `json:"query_hash"`

	// QueryText 查询原文
	QueryText string `json:"query_text"`

	// Answer 生成的答案
	Answer string `json:"answer"`

	// Sources 来源列表
	Sources []Source `json:"sources"`

	// CachedAt 写入时间
	CachedAt time.Time `json:"cached_at"`

	// ExpiresAt 过期时间，以 Unix 秒存储
	ExpiresAt time.Time `json:"-"`

	// TTL 过期时间戳（Unix 秒），与 ExpiresAt 对应
	TTL int64 `json:"ttl"`

	// ExecutionTimeMs 原始运行的耗时
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

// NewCacheEntry 根据成功结果构建缓存条目
func NewCacheEntry(query string, result *PipelineResult, now time.Time, ttl time.Duration) *CacheEntry {
	expiresAt := now.Add(ttl)
	sources := make([]Source, len(result.Sources))
	copy(sources, result.Sources)

	return &CacheEntry{
		Key:             QueryKey(query),
		QueryText:       query,
		Answer:          result.Answer,
		Sources:         sources,
		CachedAt:        now.UTC(),
		ExpiresAt:       time.Unix(expiresAt.Unix(), 0).UTC(),
		TTL:             expiresAt.Unix(),
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
}

// Expired 判断条目在 now 时刻是否已过期（expiresAt <= now 视为过期）
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.TTL <= now.Unix()
}

// Normalize 从 TTL 恢复 ExpiresAt，反序列化后调用
func (e *CacheEntry) Normalize() {
	e.ExpiresAt = time.Unix(e.TTL, 0).UTC()
	if e.Sources == nil {
		e.Sources = []Source{}
	}
}

// ToResult 将缓存条目转换为命中结果，executionTimeMs 由网关按本次请求计算
func (e *CacheEntry) ToResult(executionTimeMs int64) *PipelineResult {
	sources := make([]Source, len(e.Sources))
	copy(sources, e.Sources)

	return &PipelineResult{
		Query:           e.QueryText,
		Answer:          e.Answer,
		Sources:         sources,
		ExecutionTimeMs: executionTimeMs,
		Cached:          true,
	}
}
