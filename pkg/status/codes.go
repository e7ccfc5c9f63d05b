package status

import "net/http"

// ErrorCode 对外暴露的错误码
// 说明：错误码与 HTTP 状态类别一一对应，客户端可据此区分"内容被拒绝"与"服务失败"

type ErrorCode string

const (
	// CodeValidation 输入格式错误、为空或超长
	CodeValidation ErrorCode = "validation_error"
	// CodeInvalidJSON 请求体不是合法 JSON
	CodeInvalidJSON ErrorCode = "invalid_json"
	// CodeGuardrailsBlocked 输入或输出被内容安全策略拦截
	CodeGuardrailsBlocked ErrorCode = "guardrails_blocked"
	// CodeWorkflowFailed 某个阶段的后端调用失败
	CodeWorkflowFailed ErrorCode = "workflow_failed"
	// CodeWorkflowStartFailed 编排运行时无法启动
	CodeWorkflowStartFailed ErrorCode = "workflow_start_failed"
	// CodeWorkflowTimeout 等待上限内未观察到终态
	CodeWorkflowTimeout ErrorCode = "workflow_timeout"
	// CodeNotFound 资源不存在
	CodeNotFound ErrorCode = "not_found"
	// CodeInternal 未分类错误
	CodeInternal ErrorCode = "internal_error"
)

// HTTPStatus 返回错误码对应的 HTTP 状态码
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeInvalidJSON, CodeGuardrailsBlocked:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeWorkflowTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError 判断错误码是否属于客户端错误
func (c ErrorCode) IsClientError() bool {
	s := c.HTTPStatus()
	return s >= 400 && s < 500
}

// PublicMessage 返回不泄露后端细节的固定提示语。
// 校验类错误的提示语由调用方给出，这里返回空串。
func (c ErrorCode) PublicMessage() string {
	switch c {
	case CodeInvalidJSON:
		return "Invalid JSON in request body"
	case CodeGuardrailsBlocked:
		return "Content blocked by safety guidelines"
	case CodeWorkflowFailed:
		return "Query processing failed"
	case CodeWorkflowStartFailed:
		return "Failed to start query processing"
	case CodeWorkflowTimeout:
		return "Query processing timed out"
	case CodeNotFound:
		return "Resource not found"
	case CodeInternal:
		return "Internal server error"
	default:
		return ""
	}
}

// String 实现 fmt.Stringer
func (c ErrorCode) String() string {
	return string(c)
}
