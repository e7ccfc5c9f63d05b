package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rag-gateway/pkg/logger"
)

const (
	// RequestIDKey 请求ID在 gin.Context 和日志字段中的键名
	RequestIDKey = "request_id"
	// RequestIDHeader 请求ID的 HTTP 头
	RequestIDHeader = "X-Request-ID"
)

// LoggingConfig 日志中间件配置
type LoggingConfig struct {
	// SkipPaths 不记录访问日志的路径，请求ID仍会生成
	SkipPaths []string
	Logger    logger.Logger
}

// LoggingMiddleware 为每个请求确定请求ID并记录访问日志。
// 请求ID优先取 X-Request-ID 头，并回写到响应头；
// 同时注入请求上下文，下游带 ctx 的日志都会附带该字段。
func LoggingMiddleware(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = &LoggingConfig{SkipPaths: []string{"/health", "/metrics"}}
	}
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	skip := config.SkipPaths

	return func(c *gin.Context) {
		requestID := resolveRequestID(c)
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		ctx := logger.InjectFields(c.Request.Context(), logger.Fields{RequestIDKey: requestID})
		c.Request = c.Request.WithContext(ctx)

		if skipped(c.Request.URL.Path, skip) {
			c.Next()
			return
		}

		req := summarize(c.Request, c.ClientIP())
		log.InfoContext(ctx, "HTTP请求开始", req.attrs()...)

		begin := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", req.method,
			"path", req.path,
			"status_code", status,
			"duration_ms", time.Since(begin).Milliseconds(),
			"response_size", c.Writer.Size(),
		}
		if status >= http.StatusInternalServerError {
			log.WarnContext(ctx, "HTTP请求完成", attrs...)
		} else {
			log.InfoContext(ctx, "HTTP请求完成", attrs...)
		}

		for _, e := range c.Errors {
			log.ErrorContext(ctx, "HTTP请求处理错误", "error", e.Error(), "error_type", e.Type)
		}
	}
}

// GetRequestID 从 gin.Context 中获取请求ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

func resolveRequestID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(RequestIDHeader)); id != "" {
		return id
	}
	return uuid.New().String()
}

// requestSummary 访问日志里记录的请求概要
type requestSummary struct {
	method        string
	path          string
	clientIP      string
	userAgent     string
	contentLength int64
}

func summarize(r *http.Request, clientIP string) requestSummary {
	return requestSummary{
		method:        r.Method,
		path:          r.URL.Path,
		clientIP:      clientIP,
		userAgent:     r.UserAgent(),
		contentLength: r.ContentLength,
	}
}

func (s requestSummary) attrs() []any {
	return []any{
		"method", s.method,
		"path", s.path,
		"client_ip", s.clientIP,
		"user_agent", s.userAgent,
		"content_length", s.contentLength,
	}
}

// skipped 路径与某个前缀完全相同或位于其子路径下
func skipped(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
