package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"rag-gateway/internal/app/middleware"
	"rag-gateway/internal/domain/models"
	"rag-gateway/pkg/status"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error     status.ErrorCode `json:"error"`
	Message   string           `json:"message"`
	RequestID string           `json:"request_id"`
}

// codeFor 将错误分类映射为对外错误码。
// 校验错误透出原始提示，其余使用固定提示语。
func codeFor(err error) (status.ErrorCode, string) {
	code := status.CodeInternal
	switch models.KindOf(err) {
	case models.KindValidation:
		var pe *models.PipelineError
		if errors.As(err, &pe) {
			return status.CodeValidation, pe.Message
		}
		code = status.CodeValidation
	case models.KindModerationBlocked:
		code = status.CodeGuardrailsBlocked
	case models.KindStageBackend:
		code = status.CodeWorkflowFailed
	case models.KindOrchestrationStart:
		code = status.CodeWorkflowStartFailed
	case models.KindTimeout:
		code = status.CodeWorkflowTimeout
	case models.KindNotFound:
		code = status.CodeNotFound
	}
	return code, code.PublicMessage()
}

// respondWithError 按错误分类返回错误响应
func respondWithError(c *gin.Context, err error) {
	code, message := codeFor(err)
	respondWithCode(c, code, message)
}

// respondWithCode 直接使用错误码返回错误响应
func respondWithCode(c *gin.Context, code status.ErrorCode, message string) {
	if message == "" {
		message = code.PublicMessage()
	}
	c.AbortWithStatusJSON(code.HTTPStatus(), ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: middleware.GetRequestID(c),
	})
}

// NewErrorResponse 构造与 HTTP 错误响应一致的结构，供命令行输出复用
func NewErrorResponse(err error, requestID string) ErrorResponse {
	code, message := codeFor(err)
	return ErrorResponse{Error: code, Message: message, RequestID: requestID}
}
