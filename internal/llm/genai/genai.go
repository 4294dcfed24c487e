// Package genai adapts a generic OpenAI-compatible agent endpoint (the
// default backend) to the llm.Provider contract. The endpoint URL comes from
// GENAI_API_URL; the catalog is advertised only when GENAI_API_KEY is set.
package genai

import (
	"context"
	"strings"

	"Sailor-Bot/internal/llm"
	"Sailor-Bot/internal/llm/openai"
)

// ProviderKey 是通用 agent 后端在注册表中的键。
const ProviderKey = "genai"

// DefaultModel 是 agent 端点提供的唯一模型。
const DefaultModel = "genai-agent"

var models = llm.Catalog{
	{Key: DefaultModel, Name: "GenAI Agent", Provider: ProviderKey, ProviderName: "GenAI", MaxTokens: 2048},
}

// Provider 通过共用的 chat-completions 客户端访问 agent 端点。
type Provider struct {
	configured bool
	chat       *openai.ChatClient
	model      *llm.ModelDescriptor
}

var _ llm.Provider = (*Provider)(nil)

// New 创建适配器。agent 端点随部署而定，没有默认地址。
func New(cfg openai.Config) *Provider {
	return &Provider{
		configured: strings.TrimSpace(cfg.APIKey) != "",
		chat:       openai.NewChatClient(ProviderKey, cfg, ""),
	}
}

// Name 返回 provider 键。
func (p *Provider) Name() string { return ProviderKey }

// Models 返回模型目录；未配置 API key 时为空。
func (p *Provider) Models() llm.Catalog {
	if !p.configured {
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

// GenerateResponse 调用 agent 端点生成回复。
func (p *Provider) GenerateResponse(ctx context.Context, fullPrompt, systemContent string) (string, error) {
	if p.model == nil {
		return "", llm.ModelNotSet(ProviderKey)
	}
	return p.chat.Complete(ctx, p.model.Key, p.model.MaxTokens, systemContent, fullPrompt)
}
