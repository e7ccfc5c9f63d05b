package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQueryLength 查询的最大长度（按 Unicode 码点计）
const MaxQueryLength = 1000

// QueryRequest 查询接口的请求体。
// Query 使用指针以区分字段缺失和空字符串。
type QueryRequest struct {
	Query *string `json:"query"`
}

// ValidateQuery 校验并规范化原始查询，返回去除首尾空白后的文本。
// maxLength <= 0 时使用 MaxQueryLength。
func ValidateQuery(raw *string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = MaxQueryLength
	}

	if raw == nil || *raw == "" {
		return "", NewValidationError("Query must be a non-empty string")
	}

	query := strings.TrimSpace(*raw)
	if query == "" {
		return "", NewValidationError("Query cannot be empty or whitespace only")
	}

	if n := utf8.RuneCountInString(query); n > maxLength {
		return "", NewValidationError(fmt.Sprintf("Query is too long (%d characters). Maximum is %d characters", n, maxLength))
	}

	return query, nil
}

// QueryKey 计算缓存键：去除首尾空白后文本的 SHA-256 十六进制摘要
func QueryKey(query string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(query)))
	return hex.EncodeToString(sum[:])
}
