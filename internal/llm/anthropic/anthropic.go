package anthropic

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

// ProviderKey 是 Anthropic 在注册表中的键。
const ProviderKey = "anthropic"

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	defaultTimeout = 10 * time.Minute
)

var models = llm.Catalog{
	{Key: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Provider: ProviderKey, ProviderName: "Anthropic", MaxTokens: 8192},
	{Key: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", Provider: ProviderKey, ProviderName: "Anthropic", MaxTokens: 8192},
	{Key: "claude-3-opus-20240229", Name: "Claude 3 Opus", Provider: ProviderKey, ProviderName: "Anthropic", MaxTokens: 4096},
}

// Config 描述 Messages API 的访问参数。
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Provider 通过 Messages API 生成回复。
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      *llm.ModelDescriptor
}

var _ llm.Provider = (*Provider)(nil)

// New 创建适配器；缺少 API Key 时模型目录为空。
func New(cfg Config) *Provider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Provider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Name 返回 provider 键。
func (p *Provider) Name() string { return ProviderKey }

// Models 返回可用模型。
func (p *Provider) Models() llm.Catalog {
	if p.apiKey == "" {
		return nil
	}
	return append(llm.Catalog(nil), models...)
}

// SetModel 选择本次请求使用的模型。
func (p *Provider) SetModel(key string) error {
	desc, err := llm.SelectModel(ProviderKey, models, key)
	if err != nil {
		return err
	}
	p.model = &desc
	return nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// GenerateResponse 发送一次 Messages 请求，拼接返回的所有文本块。
func (p *Provider) GenerateResponse(ctx context.Context, fullPrompt, systemContent string) (string, error) {
	if p.model == nil {
		return "", llm.ModelNotSet(ProviderKey)
	}

	payload, err := json.Marshal(messagesRequest{
		Model:     p.model.Key,
		System:    systemContent,
		Messages:  []message{{Role: "user", Content: fullPrompt}},
		MaxTokens: p.model.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("序列化 Anthropic 请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", llm.ConnectivityError(ProviderKey, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", llm.ConnectivityError(ProviderKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", llm.ReadStatusError(ProviderKey, resp)
	}

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", llm.MalformedResponse(ProviderKey, resp.StatusCode, err)
	}
	var builder strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	if builder.Len() == 0 {
		return "", llm.MalformedResponse(ProviderKey, resp.StatusCode, errors.New("response has no text content"))
	}
	return builder.String(), nil
}
