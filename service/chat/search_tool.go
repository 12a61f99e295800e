package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"drive-agent-backend/config"
	"drive-agent-backend/service/index"
	"drive-agent-backend/utils"

	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/vectorstores"
	v2 "github.com/tmc/langchaingo/vectorstores/milvus/v2"
)

const searchNumDocs = 5

// SourceDoc 回答引用的已索引文档片段
type SourceDoc struct {
	FileID string `json:"file_id"`
	Path   string `json:"path"`
	Text   string `json:"text"`
}

// DocumentSearchTool 在文档索引上做向量检索的Agent工具
// 记录每轮检索命中的片段，供回答结束后随消息一并返回
type DocumentSearchTool struct {
	store vectorstores.VectorStore

	mu   sync.Mutex
	docs []SourceDoc
}

var _ tools.Tool = &DocumentSearchTool{}

func NewDocumentSearchTool(ctx context.Context) (*DocumentSearchTool, error) {
	llm, err := openai.New(
		openai.WithEmbeddingModel(config.Cfg.Model.EmbeddingModel),
		openai.WithToken(config.Cfg.Model.APIKey),
		openai.WithBaseURL(config.Cfg.Model.BaseURL),
		openai.WithHTTPClient(utils.DefaultHTTPClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder client: %v", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %v", err)
	}

	clientConfig := milvusclient.ClientConfig{
		Address: config.Cfg.Milvus.Endpoint,
		APIKey:  config.Cfg.Milvus.APIKey,
	}

	store, err := v2.New(ctx, clientConfig,
		v2.WithEmbedder(embedder),
		v2.WithCollectionName(index.CollectionName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus vector store: %v", err)
	}

	return &DocumentSearchTool{store: store}, nil
}

func (t *DocumentSearchTool) Name() string {
	return "document_search"
}

func (t *DocumentSearchTool) Description() string {
	return "Searches the indexed workspace documents. " +
		"Input should be a search query describing the information you need. " +
		"Returns the most relevant document excerpts with their file paths."
}

func (t *DocumentSearchTool) Call(ctx context.Context, input string) (string, error) {
	docs, err := t.store.SimilaritySearch(ctx, input, searchNumDocs)
	if err != nil {
		return "", fmt.Errorf("failed to search documents: %v", err)
	}

	if len(docs) == 0 {
		return "No matching documents found.", nil
	}

	var sb strings.Builder
	for i, doc := range docs {
		path, _ := doc.Metadata["path"].(string)
		fileID, _ := doc.Metadata["file_id"].(string)

		t.addSourceDoc(SourceDoc{
			FileID: fileID,
			Path:   path,
			Text:   doc.PageContent,
		})

		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, path, doc.PageContent)
	}

	return sb.String(), nil
}

func (t *DocumentSearchTool) addSourceDoc(doc SourceDoc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = append(t.docs, doc)
}

// SourceDocs 返回本轮对话检索到的全部片段
func (t *DocumentSearchTool) SourceDocs() []SourceDoc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SourceDoc(nil), t.docs...)
}
