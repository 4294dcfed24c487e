package vertexai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/internal/llm"
)

// ProviderKey 是 Vertex AI 在注册表中的键。
const ProviderKey = "vertexai"

const (
	defaultLocation = "us-central1"
	defaultTimeout  = 10 * time.Minute
	cloudScope      = "https://www.googleapis.com/auth/cloud-platform"
)

var models = llm.Catalog{
	{Key: "gemini-1.5-flash-002", Name: "Gemini 1.5 Flash", Provider: ProviderKey, ProviderName: "VertexAI", MaxTokens: 8192},
	{Key: "gemini-1.5-pro-002", Name: "Gemini 1.5 Pro", Provider: ProviderKey, ProviderName: "VertexAI", MaxTokens: 8192},
}

// Config 描述 Vertex AI 的项目信息与鉴权方式。
// AccessToken 与 TokenSource 都为空时使用 Google 默认凭据（ADC）。
type Config struct {
	ProjectID   string
	Location    string
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
}

// Provider 调用 Gemini 的 generateContent 接口。
type Provider struct {
	projectID   string
	location    string
	baseURL     string
	accessToken string
	tokens      oauth2.TokenSource
	httpClient  *http.Client
	model       *llm.ModelDescriptor
}

var _ llm.Provider = (*Provider)(nil)

// New 创建适配器；缺少项目 ID 时模型目录为空。
func New(cfg Config) *Provider {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = defaultLocation
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com", location)
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
		projectID:   strings.TrimSpace(cfg.ProjectID),
		location:    location,
		baseURL:     baseURL,
		accessToken: strings.TrimSpace(cfg.AccessToken),
		tokens:      cfg.TokenSource,
		httpClient:  httpClient,
	}
}

// Name 返回 provider 键。
func (p *Provider) Name() string { return ProviderKey }

// Models 返回可用模型。
func (p *Provider) Models() llm.Catalog {
	if p.projectID == "" {
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

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateResponse 发送一次 generateContent 请求并返回首个候选的文本。
func (p *Provider) GenerateResponse(ctx context.Context, fullPrompt, systemContent string) (string, error) {
	if p.model == nil {
		return "", llm.ModelNotSet(ProviderKey)
	}
	if p.projectID == "" {
		return "", xerrors.New(xerrors.CodeConfiguration, "vertexai project id is not configured",
			xerrors.WithMetadata("provider", ProviderKey))
	}

	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: fullPrompt}}}},
		GenerationConfig: generationConfig{MaxOutputTokens: p.model.MaxTokens},
	}
	if systemContent != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: systemContent}}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("序列化 Vertex AI 请求失败: %w", err)
	}

	token, err := p.token(ctx)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeBackendAuthentication, err, "vertexai authentication failed",
			xerrors.WithMetadata("provider", ProviderKey),
			xerrors.WithMetadata("reason", err.Error()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", llm.ConnectivityError(ProviderKey, err)
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", llm.ConnectivityError(ProviderKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", llm.ReadStatusError(ProviderKey, resp)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", llm.MalformedResponse(ProviderKey, resp.StatusCode, err)
	}
	if len(decoded.Candidates) == 0 {
		return "", llm.MalformedResponse(ProviderKey, resp.StatusCode, errors.New("response has no candidates"))
	}
	var builder strings.Builder
	for _, prt := range decoded.Candidates[0].Content.Parts {
		builder.WriteString(prt.Text)
	}
	return builder.String(), nil
}

func (p *Provider) endpoint() string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		p.baseURL, url.PathEscape(p.projectID), url.PathEscape(p.location), url.PathEscape(p.model.Key))
}

func (p *Provider) token(ctx context.Context) (*oauth2.Token, error) {
	source := p.tokens
	if source == nil && p.accessToken != "" {
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.accessToken, TokenType: "Bearer"})
	}
	if source == nil {
		ts, err := google.DefaultTokenSource(ctx, cloudScope)
		if err != nil {
			return nil, err
		}
		source = ts
	}
	return source.Token()
}
