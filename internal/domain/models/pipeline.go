package models

// Direction 审核方向
type Direction string

const (
	// DirectionInput 审核用户输入
	DirectionInput Direction = "INPUT"
	// DirectionOutput 审核模型输出
	DirectionOutput Direction = "OUTPUT"
)

// Valid 判断方向是否合法
func (d Direction) Valid() bool {
	return d == DirectionInput || d == DirectionOutput
}

// ModerationAction 审核动作
type ModerationAction string

const (
	ActionAllowed ModerationAction = "ALLOWED"
	ActionBlocked ModerationAction = "BLOCKED"
)

// ModerationVerdict 单次审核的结论
type ModerationVerdict struct {
	Passed bool             `json:"passed"`
	Action ModerationAction `json:"action"`
	Reason string           `json:"reason,omitempty"`
}

// RetrievedPassage 一条检索命中
type RetrievedPassage struct {
	// Text 原始文本
	Text string `json:"text"`

	// Score 相关度分数，越大越相关，取值范围由检索后端决定
	Score float64 `json:"score"`

	// Metadata 来源元数据，至少包含来源标识
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source 返回给调用方的来源信息
type Source struct {
	Title string   `json:"title"`
	URI   string   `json:"uri,omitempty"`
	Page  *int     `json:"page,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Generation 生成阶段的输出
type Generation struct {
	Answer     string `json:"answer"`
	TokensUsed int    `json:"tokens_used"`
	StopReason string `json:"stop_reason"`
}

// PipelineResult 一次成功运行的结果，也是写入缓存的单元（不含 Cached）。
// Cached 只在从缓存读出时置为 true。
type PipelineResult struct {
	Query           string   `json:"query"`
	Answer          string   `json:"answer"`
	Sources         []Source `json:"sources"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
	Cached          bool     `json:"cached"`
}
