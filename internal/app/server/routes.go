package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-gateway/internal/app/handlers"
	"rag-gateway/internal/app/middleware"
	"rag-gateway/pkg/logger"
)

// Handlers 路由所需的处理器集合
type Handlers struct {
	Query  *handlers.QueryHandler
	Cache  *handlers.CacheHandler
	Health *handlers.HealthHandler

	// Metrics 为 nil 时不注册指标端点
	Metrics         http.Handler
	MetricsEndpoint string
}

// SetupRoutes 配置并注册 HTTP 服务器的所有路由规则。
func SetupRoutes(engine *gin.Engine, h Handlers, log logger.Logger) {
	setupMiddleware(engine, h.MetricsEndpoint, log)

	engine.GET("/health", h.Health.HealthCheck)
	if h.Metrics != nil {
		endpoint := h.MetricsEndpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		engine.GET(endpoint, gin.WrapH(h.Metrics))
	}

	v1 := engine.Group("/v1")

	// 查询入口
	v1.POST("/query", h.Query.Query)
	// 轮询超出等待上限的运行
	v1.GET("/runs/:run_id", h.Query.GetRun)

	// 缓存运维：按查询哈希读取或失效
	cache := v1.Group("/cache")
	cache.GET("/:key", h.Cache.GetCacheEntry)
	cache.DELETE("/:key", h.Cache.DeleteCacheEntry)
}

// setupMiddleware 设置全局中间件
func setupMiddleware(engine *gin.Engine, metricsEndpoint string, log logger.Logger) {
	// 捕获panic并返回500错误
	engine.Use(gin.Recovery())

	skip := []string{"/health"}
	if metricsEndpoint != "" {
		skip = append(skip, metricsEndpoint)
	}
	engine.Use(middleware.LoggingMiddleware(&middleware.LoggingConfig{
		SkipPaths: skip,
		Logger:    log,
	}))
}
