package telegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegra.ph"

// Client 封装与 Telegraph API 的 HTTP 通讯
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

// NewClient 创建 Telegraph 客户端
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

// Page 待创建的页面内容
type Page struct {
	Title     string
	Body      string
	MediaURLs []string
}

// APIError 表示 Telegraph 业务错误
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegraph api error: %s", e.Message)
}

// node Telegraph DOM 节点
type node struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []interface{}     `json:"children,omitempty"`
}

// CreatePage 创建 Telegraph 页面，返回页面 URL
func (c *Client) CreatePage(ctx context.Context, accessToken string, page Page) (string, error) {
	if accessToken == "" {
		return "", fmt.Errorf("telegraph access token is empty")
	}

	content, err := json.Marshal(buildNodes(page))
	if err != nil {
		return "", fmt.Errorf("marshal telegraph content failed: %w", err)
	}

	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = "Untitled"
	}

	form := url.Values{}
	form.Set("access_token", accessToken)
	form.Set("title", title)
	form.Set("content", string(content))
	form.Set("return_content", "false")

	endpoint := c.baseURL + "/createPage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create telegraph request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request telegraph api failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read telegraph response failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegraph http error: status=%d", resp.StatusCode)
	}

	var envelope struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("decode telegraph response failed: %w", err)
	}

	if !envelope.OK {
		return "", &APIError{Message: envelope.Error}
	}

	if envelope.Result.URL == "" {
		return "", fmt.Errorf("telegraph response has no page url")
	}

	return envelope.Result.URL, nil
}

// buildNodes 将正文段落与媒体 URL 转换为 Telegraph 节点列表
func buildNodes(page Page) []node {
	var nodes []node

	for _, paragraph := range strings.Split(page.Body, "\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		nodes = append(nodes, node{
			Tag:      "p",
			Children: []interface{}{paragraph},
		})
	}

	for _, mediaURL := range page.MediaURLs {
		if mediaURL == "" {
			continue
		}
		nodes = append(nodes, node{
			Tag:   "img",
			Attrs: map[string]string{"src": mediaURL},
		})
	}

	if len(nodes) == 0 {
		nodes = append(nodes, node{Tag: "p", Children: []interface{}{""}})
	}

	return nodes
}
