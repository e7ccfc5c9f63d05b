package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-gateway/internal/app/middleware"
	"rag-gateway/internal/domain/models"
	"rag-gateway/pkg/logger"
	"rag-gateway/pkg/status"
)

// Asker 查询处理器依赖的网关能力
type Asker interface {
	Ask(ctx context.Context, raw *string, requestID string) (*models.PipelineResult, error)
	GetRun(ctx context.Context, runID string) (models.RunStatus, error)
}

// QueryHandler 查询与运行状态处理器
type QueryHandler struct {
	gateway Asker
	logger  logger.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(gateway Asker, log logger.Logger) *QueryHandler {
	return &QueryHandler{gateway: gateway, logger: log}
}

// Query 处理一次查询
// POST /v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := middleware.GetRequestID(c)

	body, err := c.GetRawData()
	if err != nil {
		h.logger.WarnContext(ctx, "读取请求体失败", "error", err)
		respondWithCode(c, status.CodeInvalidJSON, "")
		return
	}

	var req models.QueryRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				// 字段类型不对按缺失处理，由校验给出提示
				req.Query = nil
			} else {
				h.logger.WarnContext(ctx, "请求体不是合法 JSON", "error", err)
				respondWithCode(c, status.CodeInvalidJSON, "")
				return
			}
		}
	}

	result, err := h.gateway.Ask(ctx, req.Query, requestID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetRun 查询运行状态，用于获取超出网关等待上限的运行结果
// GET /v1/runs/:run_id
func (h *QueryHandler) GetRun(c *gin.Context) {
	ctx := c.Request.Context()
	runID := c.Param("run_id")

	run, err := h.gateway.GetRun(ctx, runID)
	if err != nil {
		if models.KindOf(err) != models.KindNotFound {
			h.logger.ErrorContext(ctx, "查询运行状态失败", "run_id", runID, "error", err)
		}
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}
