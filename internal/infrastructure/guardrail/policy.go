// Package guardrail 提供基于规则的内容安全审核后端
package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/services"
	"rag-gateway/internal/eino/config"
)

var _ services.GuardrailBackend = (*PolicyGuardrail)(nil)

// piiPatterns 内置的敏感信息识别规则
var piiPatterns = map[string]string{
	"EMAIL":       `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	"PHONE":       `(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`,
	"CREDIT_CARD": `\b(?:\d[ \-]?){12,15}\d\b`,
	"SSN":         `\b\d{3}-\d{2}-\d{4}\b`,
	"IP_ADDRESS":  `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
}

type namedPattern struct {
	name    string
	pattern *regexp.Regexp
}

// PolicyGuardrail 按配置的主题、内容过滤、词表和敏感信息规则审核文本
type PolicyGuardrail struct {
	id      string
	version string

	topics  []namedPattern
	filters []namedPattern
	words   []namedPattern
	pii     []namedPattern
}

// NewPolicyGuardrail 编译审核规则，规则非法时返回错误
func NewPolicyGuardrail(cfg *config.GuardrailConfig) (*PolicyGuardrail, error) {
	g := &PolicyGuardrail{
		id:      cfg.ID,
		version: cfg.Version,
	}

	for _, name := range sortedKeys(cfg.DeniedTopics) {
		var alternatives []string
		for _, kw := range cfg.DeniedTopics[name] {
			if kw = strings.TrimSpace(kw); kw != "" {
				alternatives = append(alternatives, wordPattern(kw))
			}
		}
		if len(alternatives) == 0 {
			continue
		}
		re, err := regexp.Compile(`(?i)(?:` + strings.Join(alternatives, "|") + `)`)
		if err != nil {
			return nil, fmt.Errorf("compile topic %s: %w", name, err)
		}
		g.topics = append(g.topics, namedPattern{name: name, pattern: re})
	}

	for _, name := range sortedKeys(cfg.ContentFilters) {
		re, err := regexp.Compile(`(?i)` + cfg.ContentFilters[name])
		if err != nil {
			return nil, fmt.Errorf("compile content filter %s: %w", name, err)
		}
		g.filters = append(g.filters, namedPattern{name: name, pattern: re})
	}

	for _, word := range cfg.BlockedWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + wordPattern(word))
		g.words = append(g.words, namedPattern{name: strings.ToLower(word), pattern: re})
	}

	for _, piiType := range cfg.PIITypes {
		expr, ok := piiPatterns[strings.ToUpper(piiType)]
		if !ok {
			return nil, fmt.Errorf("unsupported pii type: %s", piiType)
		}
		g.pii = append(g.pii, namedPattern{name: strings.ToUpper(piiType), pattern: regexp.MustCompile(expr)})
	}

	return g, nil
}

// Apply 执行全部规则，任一类别命中即视为拦截
func (g *PolicyGuardrail) Apply(ctx context.Context, text string, direction models.Direction) (*models.GuardrailOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcome := &models.GuardrailOutcome{
		Action:         models.GuardrailActionNone,
		Topics:         matchAll(g.topics, text),
		ContentFilters: matchAll(g.filters, text),
		Words:          matchAll(g.words, text),
		PII:            matchAll(g.pii, text),
	}

	if len(outcome.Topics)+len(outcome.ContentFilters)+len(outcome.Words)+len(outcome.PII) > 0 {
		outcome.Action = models.GuardrailActionIntervened
	}

	return outcome, nil
}

// Identity 返回策略标识和版本，用于日志
func (g *PolicyGuardrail) Identity() (string, string) {
	return g.id, g.version
}

// wordPattern 按整词匹配关键词。
// \b 只加在词字符一侧，C++ 这类以符号结尾的词也能命中。
func wordPattern(word string) string {
	expr := regexp.QuoteMeta(word)
	if first, _ := utf8.DecodeRuneInString(word); isWordRune(first) {
		expr = `\b` + expr
	}
	if last, _ := utf8.DecodeLastRuneInString(word); isWordRune(last) {
		expr += `\b`
	}
	return expr
}

// isWordRune 与 RE2 的 \w 一致，只认 ASCII 字母数字和下划线
func isWordRune(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func matchAll(patterns []namedPattern, text string) []string {
	var hits []string
	for _, p := range patterns {
		if p.pattern.MatchString(text) {
			hits = append(hits, p.name)
		}
	}
	return hits
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
