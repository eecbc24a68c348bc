package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"

	// Notion 对单个 rich_text 片段的长度上限
	maxTextChunk = 2000
)

// Client 封装与 Notion API 的 HTTP 通讯
// integration token 按用户配置，随每次调用传入
type Client struct {
	baseURL    string
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

// WithBaseURL 自定义 API 地址（测试时使用）
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewClient 创建 Notion 客户端
func NewClient(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Credentials 单个用户的 Notion 访问凭据
type Credentials struct {
	Token      string // integration token
	DatabaseID string // 目标数据库 ID
}

// Page 待创建的页面内容
type Page struct {
	Title     string
	Body      string
	MediaURLs []string
}

// APIError 表示 Notion 业务错误
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion api error: status=%d, code=%s, message=%s", e.Status, e.Code, e.Message)
}

// CreatePage 在配置的数据库中创建一个页面，返回页面 ID
func (c *Client) CreatePage(ctx context.Context, creds Credentials, page Page) (string, error) {
	if creds.Token == "" || creds.DatabaseID == "" {
		return "", fmt.Errorf("notion credentials are incomplete")
	}

	payload := map[string]interface{}{
		"parent": map[string]string{"database_id": creds.DatabaseID},
		"properties": map[string]interface{}{
			"Name": map[string]interface{}{
				"title": richText(page.Title),
			},
		},
		"children": buildBlocks(page),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal notion request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create notion request failed: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", notionVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request notion api failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read notion response failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Code != "" {
			return "", &APIError{Status: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
		}
		return "", fmt.Errorf("notion http error: status=%d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode notion response failed: %w", err)
	}

	if result.ID == "" {
		return "", fmt.Errorf("notion response has no page id")
	}

	return result.ID, nil
}

// buildBlocks 将正文段落与媒体 URL 转换为 Notion block 列表
func buildBlocks(page Page) []map[string]interface{} {
	var blocks []map[string]interface{}

	for _, paragraph := range strings.Split(page.Body, "\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		blocks = append(blocks, map[string]interface{}{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]interface{}{
				"rich_text": richText(paragraph),
			},
		})
	}

	for _, url := range page.MediaURLs {
		if url == "" {
			continue
		}
		blocks = append(blocks, map[string]interface{}{
			"object": "block",
			"type":   "image",
			"image": map[string]interface{}{
				"type":     "external",
				"external": map[string]string{"url": url},
			},
		})
	}

	return blocks
}

// richText 构建 rich_text 片段，超长文本按 Notion 限制切分
func richText(text string) []map[string]interface{} {
	if text == "" {
		return []map[string]interface{}{}
	}

	var parts []map[string]interface{}
	runes := []rune(text)
	for len(runes) > 0 {
		chunk := runes
		if len(chunk) > maxTextChunk {
			chunk = runes[:maxTextChunk]
		}
		parts = append(parts, map[string]interface{}{
			"type": "text",
			"text": map[string]string{"content": string(chunk)},
		})
		runes = runes[len(chunk):]
	}

	return parts
}
