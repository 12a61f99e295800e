package insight

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"drive-agent-backend/config"
	"drive-agent-backend/model"
	"drive-agent-backend/service/scan"
	"drive-agent-backend/utils"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// 超出预算的文档只送前段内容，摘要质量优先于完整性
const maxContentLength = 30000

//go:embed prompts/insight.txt
var insightPrompt string

// Extractor 调用洞察模型，从文档文本中提取摘要与行动项
type Extractor struct {
	llm llms.Model
}

func NewExtractor() (*Extractor, error) {
	llm, err := openai.New(
		openai.WithModel(config.Cfg.Model.ChatModel),
		openai.WithToken(config.Cfg.Model.APIKey),
		openai.WithBaseURL(config.Cfg.Model.BaseURL),
		openai.WithHTTPClient(utils.DefaultHTTPClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create insight llm client: %v", err)
	}
	return &Extractor{llm: llm}, nil
}

func (e *Extractor) Extract(ctx context.Context, text string) (*scan.Insight, error) {
	text = truncateContent(text)

	tmpl, err := template.New("prompt").Parse(insightPrompt)
	if err != nil {
		return nil, scan.Permanent(fmt.Errorf("failed to parse prompt template: %v", err))
	}

	var buf bytes.Buffer
	data := struct {
		Content string
	}{
		Content: text,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, scan.Permanent(fmt.Errorf("failed to execute template: %v", err))
	}

	resp, err := llms.GenerateFromSinglePrompt(ctx, e.llm, buf.String())
	if err != nil {
		return nil, scan.Transient(fmt.Errorf("llm call error: %w", err))
	}

	insight, err := parseResponse(resp)
	if err != nil {
		// 模型对同样的输入大概率给出同样的坏输出
		return nil, scan.Permanent(fmt.Errorf("failed to parse insight response: %v", err))
	}

	return insight, nil
}

// truncateContent 在rune边界截断，不把多字节字符劈成非法序列
func truncateContent(text string) string {
	if len(text) <= maxContentLength {
		return text
	}
	cut := maxContentLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// parseResponse 容忍模型输出包裹代码栅栏或前后缀文本的情况
func parseResponse(resp string) (*scan.Insight, error) {
	raw := extractJSON(resp)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed struct {
		Summary     string `json:"summary"`
		ActionItems []struct {
			Description string `json:"description"`
			DueHint     string `json:"due_hint"`
			Priority    string `json:"priority"`
		} `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}

	if strings.TrimSpace(parsed.Summary) == "" {
		return nil, fmt.Errorf("empty summary in response")
	}

	insight := &scan.Insight{
		Summary: strings.TrimSpace(parsed.Summary),
	}
	for _, item := range parsed.ActionItems {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			continue
		}
		insight.ActionItems = append(insight.ActionItems, model.ActionItem{
			Description: desc,
			DueHint:     strings.TrimSpace(item.DueHint),
			Priority:    normalizePriority(item.Priority),
		})
	}

	return insight, nil
}

func extractJSON(resp string) string {
	resp = strings.TrimSpace(resp)

	if strings.HasPrefix(resp, "```") {
		resp = strings.TrimPrefix(resp, "```json")
		resp = strings.TrimPrefix(resp, "```")
		resp = strings.TrimSuffix(resp, "```")
		resp = strings.TrimSpace(resp)
	}

	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start < 0 || end <= start {
		return ""
	}
	return resp[start : end+1]
}

func normalizePriority(priority string) string {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}
