package parser

import (
	"context"
	"fmt"
	"strings"

	"drive-agent-backend/service/scan"

	"github.com/tmc/langchaingo/schema"
)

// documentParser 单一格式的文本抽取器
type documentParser interface {
	// 判断是否支持传入的mime类型
	CanParse(mimeType string) bool

	// 抽取纯文本
	Parse(ctx context.Context, data []byte) (string, error)
}

// Registry 按mime类型分发到具体解析器
type Registry struct {
	parsers []documentParser
}

func NewRegistry() *Registry {
	return &Registry{
		parsers: []documentParser{
			&pdfParser{},
			&textParser{},
			&csvParser{},
		},
	}
}

func (r *Registry) Parse(ctx context.Context, data []byte, mimeType string) (string, error) {
	mimeType = normalizeMime(mimeType)

	for _, p := range r.parsers {
		if !p.CanParse(mimeType) {
			continue
		}

		text, err := p.Parse(ctx, data)
		if err != nil {
			// 内容损坏重试无意义
			return "", scan.Permanent(fmt.Errorf("failed to parse %s content: %v", mimeType, err))
		}
		return text, nil
	}

	return "", scan.Permanent(fmt.Errorf("%w: %s", scan.ErrUnsupportedFormat, mimeType))
}

func normalizeMime(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx > 0 {
		mimeType = mimeType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(mimeType))
}

func joinDocuments(docs []schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		content := strings.TrimSpace(doc.PageContent)
		if content == "" {
			continue
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n")
}
