package models

import (
	"errors"
	"fmt"
)

// ErrorKind 流水线错误分类
type ErrorKind string

const (
	// KindValidation 查询格式错误、为空或超长，在网关边界处理
	KindValidation ErrorKind = "validation"
	// KindModerationBlocked 内容安全策略拦截了输入或输出
	KindModerationBlocked ErrorKind = "moderation_blocked"
	// KindStageBackend 审核、检索或生成后端调用失败
	KindStageBackend ErrorKind = "stage_backend"
	// KindCache 缓存读写失败，永远不向调用方传播
	KindCache ErrorKind = "cache"
	// KindOrchestrationStart 编排运行时无法启动
	KindOrchestrationStart ErrorKind = "orchestration_start"
	// KindTimeout 网关等待上限内未观察到终态
	KindTimeout ErrorKind = "timeout"
	// KindNotFound 运行记录或缓存条目不存在
	KindNotFound ErrorKind = "not_found"
	// KindInternal 未分类错误
	KindInternal ErrorKind = "internal"
)

// PipelineError 携带分类、阶段和底层原因的结构化错误。
// 对外只暴露 Kind 和 Message，Err 仅用于内部诊断。
type PipelineError struct {
	Kind    ErrorKind
	Stage   RunState
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *PipelineError) Error() string {
	prefix := string(e.Kind)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s[%s]", e.Kind, e.Stage)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is 按 Kind 比较，便于 errors.Is(err, ErrTimeout) 这类判断
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewPipelineError 创建流水线错误
func NewPipelineError(kind ErrorKind, stage RunState, message string, err error) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

// NewValidationError 创建校验错误
func NewValidationError(message string) *PipelineError {
	return NewPipelineError(KindValidation, "", message, nil)
}

// NewBlockedError 创建内容拦截错误，reason 来自审核结论
func NewBlockedError(stage RunState, reason string) *PipelineError {
	return NewPipelineError(KindModerationBlocked, stage, reason, nil)
}

// NewStageError 创建阶段后端错误
func NewStageError(stage RunState, err error) *PipelineError {
	return NewPipelineError(KindStageBackend, stage, "stage backend failed", err)
}

// 哨兵错误，仅用于 errors.Is 判断
var (
	ErrValidation         = &PipelineError{Kind: KindValidation}
	ErrModerationBlocked  = &PipelineError{Kind: KindModerationBlocked}
	ErrStageBackend       = &PipelineError{Kind: KindStageBackend}
	ErrOrchestrationStart = &PipelineError{Kind: KindOrchestrationStart}
	ErrTimeout            = &PipelineError{Kind: KindTimeout}
	ErrNotFound           = &PipelineError{Kind: KindNotFound}
)

// KindOf 返回错误分类，非 PipelineError 一律视为 internal
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
