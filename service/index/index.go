package index

import (
	"context"
	"fmt"

	"drive-agent-backend/config"
	"drive-agent-backend/service/scan"
	"drive-agent-backend/utils"

	"github.com/milvus-io/milvus/client/v2/column"
	client "github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	CollectionName = "document_insight"

	VectorDim = 1024

	chunkSize          = 4000
	chunkOverlap       = 200
	embeddingBatchSize = 10
)

// Indexer 将文档摘要与正文切片写入Milvus检索索引
// 同一entry_id下的所有行属于同一个文档版本
type Indexer struct {
	splitter     textsplitter.TextSplitter
	embedder     embeddings.Embedder
	milvusClient *client.Client
}

func NewIndexer(ctx context.Context) (*Indexer, error) {
	separators := []string{"\n\n", "\n", "。", "！", "？", "；", "，", " ", ""}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators(separators),
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	llm, err := openai.New(
		openai.WithEmbeddingModel(config.Cfg.Model.EmbeddingModel),
		openai.WithToken(config.Cfg.Model.APIKey),
		openai.WithBaseURL(config.Cfg.Model.BaseURL),
		openai.WithHTTPClient(utils.DefaultHTTPClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder client: %v", err)
	}

	embedder, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(embeddingBatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %v", err)
	}

	milvusClient, err := client.New(ctx, &client.ClientConfig{
		Address: config.Cfg.Milvus.Endpoint,
		APIKey:  config.Cfg.Milvus.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %v", err)
	}

	return &Indexer{
		splitter:     splitter,
		embedder:     embedder,
		milvusClient: milvusClient,
	}, nil
}

// Index 摘要作为首个切片一并入库，检索时可以直接命中全文概要
func (ix *Indexer) Index(ctx context.Context, req scan.IndexRequest) error {
	chunks, err := ix.splitter.SplitText(req.Text)
	if err != nil {
		return scan.Permanent(fmt.Errorf("error splitting text for %s: %v", req.FileID, err))
	}

	texts := make([]string, 0, len(chunks)+1)
	texts = append(texts, req.Summary)
	texts = append(texts, chunks...)

	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return scan.Transient(fmt.Errorf("error embedding document %s: %v", req.FileID, err))
	}

	entryIDs := make([]string, len(texts))
	fileIDs := make([]string, len(texts))
	versions := make([]string, len(texts))
	paths := make([]string, len(texts))
	for i := range texts {
		entryIDs[i] = req.EntryID
		fileIDs[i] = req.FileID
		versions[i] = req.Version
		paths[i] = req.Path
	}

	columns := []column.Column{
		column.NewColumnVarChar("text", texts),
		column.NewColumnFloatVector("vector", VectorDim, vectors),
		column.NewColumnVarChar("entry_id", entryIDs),
		column.NewColumnVarChar("file_id", fileIDs),
		column.NewColumnVarChar("version", versions),
		column.NewColumnVarChar("path", paths),
	}

	insertOption := client.NewColumnBasedInsertOption(CollectionName).WithColumns(columns...)
	if _, err := ix.milvusClient.Insert(ctx, insertOption); err != nil {
		return scan.Transient(fmt.Errorf("error inserting chunks for %s: %v", req.FileID, err))
	}

	return nil
}
