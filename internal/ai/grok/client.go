package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blog_bot/internal/config"
	"blog_bot/internal/logger"
)

// Client 封装与 xAI 聊天补全接口的 HTTP 通讯
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Option 自定义客户端行为
type Option func(*Client)

// WithHTTPClient 自定义 HTTP 客户端（测试时使用）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient 根据配置创建分类客户端
func NewClient(cfg config.AIConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("ai api key is empty")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "grok-beta"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Message 参与分类的单条消息
type Message struct {
	Sender string
	SentAt time.Time
	Text   string
}

// Decision 分类结果（经过严格校验的结构化结论）
type Decision struct {
	IsInformational bool   // 批次是否有信息量（值得成文）
	ShouldCombine   bool   // 是否应合并为一篇文章
	SuggestedTitle  string // 建议标题（可为空）
	CombinedContent string // 整理后的正文（可为空）
}

// FormatError 表示模型回复中找不到合法的结构化结论
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("classification format error: %s", e.Reason)
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Stream      bool                    `json:"stream"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are an editor for a personal blog. You receive a batch of chat messages " +
	"and decide whether they contain publishable information. Respond ONLY with compact JSON like " +
	`{"is_informational":true,"should_combine":true,"suggested_title":"...","combined_content":"..."}. ` +
	"Set is_informational to false for small talk, greetings, or noise. When is_informational is true, " +
	"write combined_content as a coherent article body in the language of the messages. Do not add explanations."

// ClassifyBatch 将一批消息交给模型分类，返回结构化结论
// 回复中缺少合法 JSON 或缺少必需布尔字段时返回 *FormatError
func (c *Client) ClassifyBatch(ctx context.Context, batch []Message) (*Decision, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("classification batch is empty")
	}

	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(batch)},
		},
		Temperature: 0,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ai request failed: %w", err)
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create ai request failed: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request ai api failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ai response failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.L().Warnf("AI response: status=%d body=%s", resp.StatusCode, truncate(string(data), 512))
		return nil, fmt.Errorf("ai http error: status=%d", resp.StatusCode)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return nil, fmt.Errorf("decode ai response failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, &FormatError{Reason: "response has no choices"}
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	return ParseDecision(content)
}

// BuildPrompt 构建确定性的批次提示词：逐条枚举序号、发送者、时间与文本
func BuildPrompt(batch []Message) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("以下是 %d 条待分析的消息：\n\n", len(batch)))

	for i, msg := range batch {
		sender := msg.Sender
		if sender == "" {
			sender = "unknown"
		}
		builder.WriteString(fmt.Sprintf("[%d] %s (%s):\n%s\n\n",
			i+1, sender, msg.SentAt.Format("2006-01-02 15:04:05"), msg.Text))
	}

	return builder.String()
}

// decisionPayload 解析用的宽松中间结构，布尔字段用指针区分"缺失"与"false"
type decisionPayload struct {
	IsInformational *bool  `json:"is_informational"`
	ShouldCombine   *bool  `json:"should_combine"`
	SuggestedTitle  string `json:"suggested_title"`
	CombinedContent string `json:"combined_content"`
}

// ParseDecision 从模型的自由文本回复中解析第一个合法 JSON 对象
func ParseDecision(content string) (*Decision, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, &FormatError{Reason: "no JSON object found in response"}
	}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("invalid JSON object: %v", err)}
	}

	if payload.IsInformational == nil {
		return nil, &FormatError{Reason: "missing required field is_informational"}
	}
	if payload.ShouldCombine == nil {
		return nil, &FormatError{Reason: "missing required field should_combine"}
	}

	return &Decision{
		IsInformational: *payload.IsInformational,
		ShouldCombine:   *payload.ShouldCombine,
		SuggestedTitle:  strings.TrimSpace(payload.SuggestedTitle),
		CombinedContent: strings.TrimSpace(payload.CombinedContent),
	}, nil
}

// extractJSONObject 提取文本中第一个括号配平的 JSON 对象（容忍代码块围栏与前后解释文字）
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(content); i++ {
		ch := content[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return ""
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
