package chat

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"drive-agent-backend/config"
	"drive-agent-backend/request"
	"drive-agent-backend/utils"

	"github.com/gin-gonic/gin"
	mcpadapter "github.com/i2y/langchaingo-mcp-adapter"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/memory"
	"github.com/tmc/langchaingo/tools"
)

const maxIterations = 5

var (
	// 配置 300s 超时时间处理 LLM 流式输出
	agentHTTPClient *http.Client = utils.NewHTTPClient(
		utils.WithTimeout(300 * time.Second),
	)

	mcpHTTPClient *http.Client = utils.DefaultHTTPClient()
)

var (
	//go:embed prompts/conversational_format_instructions.txt
	conversationalFormatInstructions string

	//go:embed prompts/conversational_prefix.txt
	conversationalPrefix string

	//go:embed prompts/conversational_suffix.txt
	conversationalSuffix string
)

// Agent 文档问答Agent：在文档索引上做向量检索，结合会话记忆作答
type Agent struct {
	Executor    *agents.Executor
	MCPClient   *client.Client
	ChatHistory *MySQLChatMessageHistory
	SearchTool  *DocumentSearchTool
	SSEHandler  *GinSSEHandler
}

func NewAgent(c *gin.Context, req request.ChatRequest) (*Agent, error) {
	llm, err := openai.New(
		openai.WithModel(config.Cfg.Model.ChatModel),
		openai.WithToken(config.Cfg.Model.APIKey),
		openai.WithBaseURL(config.Cfg.Model.BaseURL),
		openai.WithHTTPClient(agentHTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %v", err)
	}

	ctx := context.Background()

	searchTool, err := NewDocumentSearchTool(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create document search tool: %v", err)
	}

	agentTools := []tools.Tool{searchTool}

	// MCP服务端未配置时只带检索工具
	var mcpClient *client.Client
	if config.Cfg.MCP.Host != "" {
		mcpClient, err = createMCPClient(c)
		if err != nil {
			return nil, fmt.Errorf("failed to create mcp client: %v", err)
		}

		if err := mcpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to init connection to the mcp server: %v", err)
		}

		mcpTools, err := getMCPTools(mcpClient)
		if err != nil {
			slog.Error("failed to get mcp tools", "err", err)
		}
		agentTools = append(agentTools, mcpTools...)
	}

	sseHandler := NewGinSSEHandler(c, req.SessionID)

	a := agents.NewConversationalAgent(llm, agentTools,
		agents.WithCallbacksHandler(sseHandler),
		agents.WithPromptPrefix(conversationalPrefix),
		agents.WithPromptFormatInstructions(conversationalFormatInstructions),
		agents.WithPromptSuffix(conversationalSuffix),
	)

	chatHistory := NewMySQLChatMessageHistory(req.SessionID)
	memory := memory.NewConversationBuffer(
		memory.WithChatHistory(chatHistory),
	)

	executor := agents.NewExecutor(
		a,
		agents.WithMemory(memory),
		agents.WithMaxIterations(maxIterations),
	)

	return &Agent{
		Executor:    executor,
		MCPClient:   mcpClient,
		ChatHistory: chatHistory,
		SearchTool:  searchTool,
		SSEHandler:  sseHandler,
	}, nil
}

func (a *Agent) Call(ctx context.Context, query string) (string, error) {
	result, err := chains.Run(ctx, a.Executor, query)
	if err != nil {
		return "", err
	}
	return result, nil
}

// SaveSourceDocs 存储本轮回答引用的文档片段
func (a *Agent) SaveSourceDocs(ctx context.Context) error {
	docs := a.SearchTool.SourceDocs()
	if len(docs) == 0 {
		return nil
	}
	return a.ChatHistory.SetSourceDocs(ctx, docs)
}

func (a *Agent) Close() error {
	if a.MCPClient != nil {
		return a.MCPClient.Close()
	}
	return nil
}

func createMCPClient(c *gin.Context) (*client.Client, error) {
	mcpServerPath := fmt.Sprintf("http://%s:%s/mcp", config.Cfg.MCP.Host, config.Cfg.MCP.Port)
	mcpClient, err := client.NewStreamableHttpClient(mcpServerPath,
		transport.WithHTTPBasicClient(mcpHTTPClient),
		transport.WithHTTPHeaders(map[string]string{
			"Authorization": c.GetHeader("Authorization"),
		}),
	)
	if err != nil {
		return nil, err
	}
	return mcpClient, nil
}

func getMCPTools(mcpClient *client.Client) ([]tools.Tool, error) {
	mcpAdapter, err := mcpadapter.New(mcpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp adapter: %v", err)
	}

	mcpTools, err := mcpAdapter.Tools()
	if err != nil {
		return nil, fmt.Errorf("failed to get mcp tools: %v", err)
	}

	return mcpTools, nil
}
