package models

// GuardrailActionNone 后端未做任何干预
const GuardrailActionNone = "NONE"

// GuardrailActionIntervened 后端拦截了内容
const GuardrailActionIntervened = "GUARDRAIL_INTERVENED"

// GuardrailOutcome 审核后端返回的原始结论，按策略类别列出触发项
type GuardrailOutcome struct {
	Action string `json:"action"`

	// 各类别命中的具体条目，为空表示该类别未触发
	Topics         []string `json:"topics,omitempty"`
	ContentFilters []string `json:"content_filters,omitempty"`
	Words          []string `json:"words,omitempty"`
	PII            []string `json:"pii,omitempty"`
}
