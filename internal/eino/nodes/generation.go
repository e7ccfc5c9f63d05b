package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"rag-gateway/internal/domain/models"
)

// defaultStopReason 模型未返回停止原因时使用
const defaultStopReason = "end_turn"

// 各模型提供方在 GenerationInfo 中使用的 token 计数键
var (
	inputTokenKeys  = []string{"InputTokens", "input_tokens", "PromptTokens"}
	outputTokenKeys = []string{"OutputTokens", "output_tokens", "CompletionTokens"}
)

// GenerationStage 调用大模型生成答案
type GenerationStage struct {
	model       llms.Model
	maxTokens   int
	temperature float64
}

// NewGenerationStage 创建生成组件
func NewGenerationStage(model llms.Model, maxTokens int, temperature float64) *GenerationStage {
	return &GenerationStage{
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Generate 根据问题和检索上下文生成答案。
// 答案为所有候选文本的拼接并去除首尾空白，token 数为输入输出之和。
func (s *GenerationStage) Generate(ctx context.Context, query, kbContext string) (models.Generation, error) {
	prompt := BuildPrompt(query, kbContext)

	resp, err := s.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithMaxTokens(s.maxTokens),
		llms.WithTemperature(s.temperature),
	)
	if err != nil {
		return models.Generation{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return models.Generation{}, fmt.Errorf("generate content: empty response")
	}

	var answer strings.Builder
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		answer.WriteString(choice.Content)
	}

	first := resp.Choices[0]
	stopReason := defaultStopReason
	var info map[string]any
	if first != nil {
		info = first.GenerationInfo
		if first.StopReason != "" {
			stopReason = first.StopReason
		}
	}

	return models.Generation{
		Answer:     strings.TrimSpace(answer.String()),
		TokensUsed: tokenCount(info, inputTokenKeys) + tokenCount(info, outputTokenKeys),
		StopReason: stopReason,
	}, nil
}

func tokenCount(info map[string]any, keys []string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
