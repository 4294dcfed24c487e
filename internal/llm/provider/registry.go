package provider

import (
	"fmt"
	"sort"
	"strings"

	"Sailor-Bot/internal/config"
	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/internal/llm"
	"Sailor-Bot/internal/llm/anthropic"
	"Sailor-Bot/internal/llm/genai"
	"Sailor-Bot/internal/llm/openai"
	"Sailor-Bot/internal/llm/vertexai"
)

// Key 标识一个受支持的后端。
type Key string

const (
	Anthropic Key = anthropic.ProviderKey
	OpenAI    Key = openai.ProviderKey
	VertexAI  Key = vertexai.ProviderKey
	GenAI     Key = genai.ProviderKey
)

// mergeOrder 是合并模型目录的顺序，Lookup 时靠后的 provider 优先。
var mergeOrder = []Key{Anthropic, OpenAI, VertexAI, GenAI}

// Keys 按合并顺序返回全部 provider 键。
func Keys() []Key {
	return append([]Key(nil), mergeOrder...)
}

// ParseKey 在受支持的 provider 中匹配 name，忽略大小写与首尾空白。
func ParseKey(name string) (Key, error) {
	normalized := Key(strings.ToLower(strings.TrimSpace(name)))
	for _, k := range mergeOrder {
		if k == normalized {
			return k, nil
		}
	}
	return "", xerrors.New(xerrors.CodeUnknownProvider, "unknown provider",
		xerrors.WithMetadata("provider", name),
		xerrors.WithMetadata("reason", name))
}

// Factory 创建新的 provider 实例。
type Factory func() llm.Provider

// Option 定义可选的 Registry 配置。
type Option func(*Registry)

// WithFactory 替换 key 对应的构造函数，不受支持的 key 被忽略。
func WithFactory(key Key, factory Factory) Option {
	return func(r *Registry) {
		if _, ok := r.factories[key]; ok && factory != nil {
			r.factories[key] = factory
		}
	}
}

// Registry 把 provider 键解析为每次请求独立的适配器实例。
type Registry struct {
	factories map[Key]Factory
}

// NewRegistry 为每个适配器注入凭据。缺少凭据不算错误，对应适配器只是不提供模型。
func NewRegistry(cfg config.ProvidersConfig, opts ...Option) *Registry {
	timeout := cfg.ProviderTimeout()
	r := &Registry{factories: map[Key]Factory{
		Anthropic: func() llm.Provider {
			return anthropic.New(anthropic.Config{
				APIKey:  cfg.Anthropic.APIKey,
				BaseURL: cfg.Anthropic.BaseURL,
				Timeout: timeout,
			})
		},
		OpenAI: func() llm.Provider {
			return openai.New(openai.Config{
				APIKey:  cfg.OpenAI.APIKey,
				BaseURL: cfg.OpenAI.BaseURL,
				Timeout: timeout,
			})
		},
		VertexAI: func() llm.Provider {
			return vertexai.New(vertexai.Config{
				ProjectID:   cfg.VertexAI.ProjectID,
				Location:    cfg.VertexAI.Location,
				AccessToken: cfg.VertexAI.AccessToken,
				BaseURL:     cfg.VertexAI.BaseURL,
				Timeout:     timeout,
			})
		},
		GenAI: func() llm.Provider {
			return genai.New(openai.Config{
				APIKey:  cfg.GenAI.APIKey,
				BaseURL: cfg.GenAI.BaseURL,
				Timeout: timeout,
			})
		},
	}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve 返回 name 对应的新适配器，未知名称返回 UNKNOWN_PROVIDER。
func (r *Registry) Resolve(name string) (llm.Provider, error) {
	key, err := ParseKey(name)
	if err != nil {
		return nil, err
	}
	return r.factories[key](), nil
}

// AvailableModels 按合并顺序汇总所有已配置 provider 的模型目录。
func (r *Registry) AvailableModels() llm.Catalog {
	catalogs := make([]llm.Catalog, 0, len(mergeOrder))
	for _, key := range mergeOrder {
		catalogs = append(catalogs, r.factories[key]().Models())
	}
	return llm.Merge(catalogs...)
}

// CheckCollisions 把被多个 provider 同时提供的模型 key 视为配置错误。
func (r *Registry) CheckCollisions() error {
	collisions := r.AvailableModels().Collisions()
	if len(collisions) == 0 {
		return nil
	}
	keys := make([]string, 0, len(collisions))
	for key := range collisions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s (%s)", key, strings.Join(collisions[key], ", ")))
	}
	return xerrors.New(xerrors.CodeConfiguration, "model keys declared by more than one provider",
		xerrors.WithMetadata("reason", strings.Join(parts, "; ")))
}

// Validate 判断 provider 当前是否提供 model。
func (r *Registry) Validate(provider, model string) bool {
	key, err := ParseKey(provider)
	if err != nil {
		return false
	}
	return r.factories[key]().Models().Contains(model)
}
