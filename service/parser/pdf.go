package parser

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tmc/langchaingo/documentloaders"
)

type pdfParser struct{}

func (p *pdfParser) CanParse(mimeType string) bool {
	return mimeType == "application/pdf"
}

func (p *pdfParser) Parse(ctx context.Context, data []byte) (string, error) {
	reader := bytes.NewReader(data)
	loader := documentloaders.NewPDF(reader, int64(len(data)))

	docs, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("error loading pdf: %v", err)
	}

	return joinDocuments(docs), nil
}
