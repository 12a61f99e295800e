package parser

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tmc/langchaingo/documentloaders"
)

type csvParser struct{}

func (p *csvParser) CanParse(mimeType string) bool {
	return mimeType == "text/csv"
}

func (p *csvParser) Parse(ctx context.Context, data []byte) (string, error) {
	reader := bytes.NewReader(data)
	loader := documentloaders.NewCSV(reader)

	docs, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("error loading csv: %v", err)
	}

	return joinDocuments(docs), nil
}
