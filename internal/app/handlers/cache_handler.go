package handlers

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-gateway/internal/domain/models"
	"rag-gateway/pkg/logger"
	"rag-gateway/pkg/status"
)

// CacheAdmin 缓存运维接口依赖的能力
type CacheAdmin interface {
	Lookup(ctx context.Context, key string) (*models.CacheEntry, bool)
	Delete(ctx context.Context, key string) error
}

// CacheHandler 缓存运维处理器
type CacheHandler struct {
	cache  CacheAdmin
	logger logger.Logger
}

// NewCacheHandler 创建缓存处理器
func NewCacheHandler(cache CacheAdmin, log logger.Logger) *CacheHandler {
	return &CacheHandler{cache: cache, logger: log}
}

// GetCacheEntry 按查询哈希读取缓存条目，过期条目视为不存在
// GET /v1/cache/:key
func (h *CacheHandler) GetCacheEntry(c *gin.Context) {
	key, ok := cacheKeyParam(c)
	if !ok {
		return
	}

	entry, found := h.cache.Lookup(c.Request.Context(), key)
	if !found {
		respondWithCode(c, status.CodeNotFound, "")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// DeleteCacheEntry 删除缓存条目，条目不存在时同样成功
// DELETE /v1/cache/:key
func (h *CacheHandler) DeleteCacheEntry(c *gin.Context) {
	ctx := c.Request.Context()
	key, ok := cacheKeyParam(c)
	if !ok {
		return
	}

	if err := h.cache.Delete(ctx, key); err != nil {
		h.logger.ErrorContext(ctx, "删除缓存条目失败", "query_hash", key, "error", err)
		respondWithCode(c, status.CodeInternal, "")
		return
	}

	h.logger.InfoContext(ctx, "缓存条目已删除", "query_hash", key)
	c.Status(http.StatusNoContent)
}

// cacheKeyParam 校验路径中的查询哈希（64 位十六进制）
func cacheKeyParam(c *gin.Context) (string, bool) {
	key := c.Param("key")
	if len(key) != 64 {
		respondWithCode(c, status.CodeValidation, "Cache key must be a 64-character hex SHA-256 digest")
		return "", false
	}
	if _, err := hex.DecodeString(key); err != nil {
		respondWithCode(c, status.CodeValidation, "Cache key must be a 64-character hex SHA-256 digest")
		return "", false
	}
	return key, true
}
