package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"rag-gateway/internal/domain/models"
)

const (
	// NoContextSentinel 检索无结果时传给生成阶段的上下文
	NoContextSentinel = "No relevant information found in the knowledge base."

	// UnknownSource 命中缺少来源标识时使用
	UnknownSource = "Unknown source"
)

// 来源 URI 的兜底元数据键，按顺序查找
var fallbackURIKeys = []string{"source_uri", "source", "uri"}

// MetadataKeys 文档元数据中来源信息所在的键
type MetadataKeys struct {
	SourceURI string
	Title     string
}

// RetrievalStage 从知识库检索与查询相关的段落
type RetrievalStage struct {
	retriever  retriever.Retriever
	maxResults int
	keys       MetadataKeys
}

// NewRetrievalStage 创建检索组件，maxResults 为最多返回的段落数
func NewRetrievalStage(r retriever.Retriever, maxResults int, keys MetadataKeys) *RetrievalStage {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &RetrievalStage{
		retriever:  r,
		maxResults: maxResults,
		keys:       keys,
	}
}

// Retrieve 检索查询相关段落，保持后端返回的相关度顺序
func (s *RetrievalStage) Retrieve(ctx context.Context, query string) ([]models.RetrievedPassage, error) {
	docs, err := s.retriever.Retrieve(ctx, query, retriever.WithTopK(s.maxResults))
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	if len(docs) > s.maxResults {
		docs = docs[:s.maxResults]
	}

	passages := make([]models.RetrievedPassage, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		passages = append(passages, toPassage(doc))
	}
	return passages, nil
}

// FormatContext 将段落格式化为提示词上下文。
// 每个非空段落输出 "[Source i: <uri>]\n<text>"，空段落跳过但仍占用序号；
// 没有任何结果时返回 NoContextSentinel。
func (s *RetrievalStage) FormatContext(passages []models.RetrievedPassage) string {
	if len(passages) == 0 {
		return NoContextSentinel
	}

	blocks := make([]string, 0, len(passages))
	for i, p := range passages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		uri := s.sourceURI(p.Metadata)
		if uri == "" {
			uri = UnknownSource
		}
		blocks = append(blocks, fmt.Sprintf("[Source %d: %s]\n%s", i+1, uri, text))
	}
	return strings.Join(blocks, "\n\n")
}

// Sources 从段落元数据提取来源列表，顺序与段落一致
func (s *RetrievalStage) Sources(passages []models.RetrievedPassage) []models.Source {
	sources := make([]models.Source, 0, len(passages))
	for _, p := range passages {
		uri := s.sourceURI(p.Metadata)
		title := s.title(p.Metadata)
		if title == "" {
			title = uri
		}
		if title == "" {
			title = UnknownSource
		}

		score := p.Score
		sources = append(sources, models.Source{
			Title: title,
			URI:   uri,
			Page:  pageOf(p.Metadata),
			Score: &score,
		})
	}
	return sources
}

func (s *RetrievalStage) sourceURI(md map[string]any) string {
	if s.keys.SourceURI != "" {
		if v := stringValue(md, s.keys.SourceURI); v != "" {
			return v
		}
	}
	for _, k := range fallbackURIKeys {
		if v := stringValue(md, k); v != "" {
			return v
		}
	}
	return ""
}

func (s *RetrievalStage) title(md map[string]any) string {
	if s.keys.Title != "" {
		if v := stringValue(md, s.keys.Title); v != "" {
			return v
		}
	}
	return stringValue(md, "title")
}

func toPassage(doc *schema.Document) models.RetrievedPassage {
	md := make(map[string]any, len(doc.MetaData))
	for k, v := range doc.MetaData {
		md[k] = v
	}
	if doc.ID != "" {
		if _, ok := md["id"]; !ok {
			md["id"] = doc.ID
		}
	}
	return models.RetrievedPassage{
		Text:     doc.Content,
		Score:    doc.Score(),
		Metadata: md,
	}
}

func stringValue(md map[string]any, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// pageOf 解析可选的页码，无法识别时返回 nil
func pageOf(md map[string]any) *int {
	v, ok := md["page"]
	if !ok || v == nil {
		return nil
	}

	var page int
	switch t := v.(type) {
	case int:
		page = t
	case int32:
		page = int(t)
	case int64:
		page = int(t)
	case float32:
		page = int(t)
	case float64:
		page = int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		page = n
	default:
		return nil
	}
	return &page
}
