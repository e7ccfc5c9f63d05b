// Package nodes 提供 Eino Graph 中各阶段使用的组件实现
package nodes

import (
	"context"
	"fmt"
	"strings"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/services"
)

// 拦截原因的固定文案，按类别顺序拼接
const (
	reasonTopic   = "Topic policy violation"
	reasonContent = "Content policy violation"
	reasonWord    = "Word policy violation"
	reasonPII     = "PII detected"

	// reasonFallback 后端报告拦截但没有给出任何类别
	reasonFallback = "Content blocked by guardrails"

	reasonSeparator = "; "
)

// ModerationGate 对输入或输出文本执行内容安全审核
type ModerationGate struct {
	backend services.GuardrailBackend
}

// NewModerationGate 创建审核组件
func NewModerationGate(backend services.GuardrailBackend) *ModerationGate {
	return &ModerationGate{backend: backend}
}

// Check 审核文本并返回结论。
// 仅当后端动作为 NONE 时通过；后端调用失败返回错误，不会当作拦截处理。
func (g *ModerationGate) Check(ctx context.Context, text string, direction models.Direction) (models.ModerationVerdict, error) {
	if !direction.Valid() {
		return models.ModerationVerdict{}, fmt.Errorf("invalid moderation direction: %q", direction)
	}

	outcome, err := g.backend.Apply(ctx, text, direction)
	if err != nil {
		return models.ModerationVerdict{}, fmt.Errorf("guardrail apply (%s): %w", direction, err)
	}
	if outcome == nil {
		return models.ModerationVerdict{}, fmt.Errorf("guardrail apply (%s): empty outcome", direction)
	}

	if outcome.Action == models.GuardrailActionNone {
		return models.ModerationVerdict{
			Passed: true,
			Action: models.ActionAllowed,
		}, nil
	}

	return models.ModerationVerdict{
		Passed: false,
		Action: models.ActionBlocked,
		Reason: blockReason(outcome),
	}, nil
}

// blockReason 按主题、内容、词表、敏感信息的顺序汇总拦截原因
func blockReason(outcome *models.GuardrailOutcome) string {
	var reasons []string
	if len(outcome.Topics) > 0 {
		reasons = append(reasons, reasonTopic)
	}
	if len(outcome.ContentFilters) > 0 {
		reasons = append(reasons, reasonContent)
	}
	if len(outcome.Words) > 0 {
		reasons = append(reasons, reasonWord)
	}
	if len(outcome.PII) > 0 {
		reasons = append(reasons, reasonPII)
	}

	if len(reasons) == 0 {
		return reasonFallback
	}
	return strings.Join(reasons, reasonSeparator)
}
