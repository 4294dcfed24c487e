package openai

import (
	"context"
	"strings"

	"Sailor-Bot/internal/llm"
)

// ProviderKey 是 OpenAI 在注册表中的键。
const ProviderKey = "openai"

var models = llm.Catalog{
	{Key: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: ProviderKey, ProviderName: "OpenAI", MaxTokens: 4096},
	{Key: "gpt-4", Name: "GPT-4", Provider: ProviderKey, ProviderName: "OpenAI", MaxTokens: 4096},
	{Key: "gpt-4o", Name: "GPT-4o", Provider: ProviderKey, ProviderName: "OpenAI", MaxTokens: 4096},
	{Key: "gpt-4o-mini", Name: "GPT-4o mini", Provider: ProviderKey, ProviderName: "OpenAI", MaxTokens: 4096},
}

// Provider 是 OpenAI 官方接口的适配器。
type Provider struct {
	configured bool
	chat       *ChatClient
	model      *llm.ModelDescriptor
}

var _ llm.Provider = (*Provider)(nil)

// New 创建适配器；缺少 API Key 时模型目录为空。
func New(cfg Config) *Provider {
	return &Provider{
		configured: strings.TrimSpace(cfg.APIKey) != "",
		chat:       NewChatClient(ProviderKey, cfg, defaultBaseURL),
	}
}

// Name 返回 provider 键。
func (p *Provider) Name() string { return ProviderKey }

// Models 返回可用模型。
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

// GenerateResponse 调用 Chat Completions 生成回复。
func (p *Provider) GenerateResponse(ctx context.Context, fullPrompt, systemContent string) (string, error) {
	if p.model == nil {
		return "", llm.ModelNotSet(ProviderKey)
	}
	return p.chat.Complete(ctx, p.model.Key, p.model.MaxTokens, systemContent, fullPrompt)
}
