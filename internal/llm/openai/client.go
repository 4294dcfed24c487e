package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"Sailor-Bot/internal/llm"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	// 与官方 SDK 的默认超时保持一致。
	defaultTimeout = 10 * time.Minute
)

// Config 描述了调用 Chat Completions 兼容接口所需的信息。
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ChatClient 通过 HTTP 调用 Chat Completions 兼容接口。
// provider 只用于错误分类与日志。
type ChatClient struct {
	provider   string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewChatClient 根据配置创建客户端，fallbackBaseURL 在配置未给出地址时使用。
func NewChatClient(provider string, cfg Config, fallbackBaseURL string) *ChatClient {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = fallbackBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &ChatClient{
		provider:   provider,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	N         int           `json:"n"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

// Complete 发送一次系统指令 + 用户提示词的请求，返回第一条 choice 的文本。
func (c *ChatClient) Complete(ctx context.Context, model string, maxTokens int, systemContent, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: model,
		N:     1,
		Messages: []chatMessage{
			{Role: "system", Content: systemContent},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("序列化 %s 请求失败: %w", c.provider, err)
	}

	if c.baseURL == "" {
		return "", llm.ConnectivityError(c.provider, errors.New("no base URL configured"))
	}
	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", llm.ConnectivityError(c.provider, err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", llm.ConnectivityError(c.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", llm.ReadStatusError(c.provider, resp)
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", llm.MalformedResponse(c.provider, resp.StatusCode, err)
	}
	if len(decoded.Choices) == 0 {
		return "", llm.MalformedResponse(c.provider, resp.StatusCode, errors.New("response has no choices"))
	}
	return decoded.Choices[0].Message.Content, nil
}
