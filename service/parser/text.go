package parser

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tmc/langchaingo/documentloaders"
)

// textParser 兼容Markdown与纯文本
type textParser struct{}

func (p *textParser) CanParse(mimeType string) bool {
	switch mimeType {
	case "text/plain", "text/markdown", "text/x-markdown":
		return true
	}
	return false
}

func (p *textParser) Parse(ctx context.Context, data []byte) (string, error) {
	reader := bytes.NewReader(data)
	loader := documentloaders.NewText(reader)

	docs, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("error loading text: %v", err)
	}

	return joinDocuments(docs), nil
}
