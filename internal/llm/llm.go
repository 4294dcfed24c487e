package llm

import (
	"context"
	"sort"
	"strings"

	xerrors "Sailor-Bot/internal/errors"
)

// DefaultSystemContent 是未指定系统指令时发送给后端的默认内容。
const DefaultSystemContent = "You are Sailor, a helpful assistant living in a Slack workspace. " +
	"Answer the user's prompt concisely, using the conversation context when it is relevant. " +
	"Format replies with Slack mrkdwn and never mention user IDs."

// Provider 定义了所有大模型后端的统一契约。
// 实例只服务于一次请求：SetModel 之后调用一次 GenerateResponse 即丢弃。
type Provider interface {
	// Name 返回小写的 provider 键，例如 "openai"。
	Name() string
	// Models 返回当前凭据下可用的模型；未配置凭据时返回空目录。
	Models() Catalog
	// SetModel 在静态目录中校验模型，失败时返回 INVALID_MODEL。
	SetModel(key string) error
	// GenerateResponse 发送一次请求并返回唯一的补全文本。
	GenerateResponse(ctx context.Context, fullPrompt, systemContent string) (string, error)
}

// ModelDescriptor 描述某个后端声明的一个模型。
type ModelDescriptor struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	ProviderName string `json:"provider_name"`
	MaxTokens    int    `json:"max_tokens"`
}

// Catalog 是按合并顺序排列的模型列表。
type Catalog []ModelDescriptor

// Merge 按参数顺序拼接多个目录。
func Merge(catalogs ...Catalog) Catalog {
	var merged Catalog
	for _, c := range catalogs {
		merged = append(merged, c...)
	}
	return merged
}

// Lookup 返回最后一个使用该键的模型，与按顺序合并映射时后者覆盖前者一致。
func (c Catalog) Lookup(key string) (ModelDescriptor, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Key == key {
			return c[i], true
		}
	}
	return ModelDescriptor{}, false
}

// Contains 判断目录中是否存在该模型键。
func (c Catalog) Contains(key string) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Models 返回模型键到描述的映射。
func (c Catalog) Models() map[string]ModelDescriptor {
	out := make(map[string]ModelDescriptor, len(c))
	for _, d := range c {
		out[d.Key] = d
	}
	return out
}

// Collisions 列出被多个 provider 声明的模型键及其 provider，键按字典序排列。
func (c Catalog) Collisions() map[string][]string {
	owners := make(map[string][]string)
	for _, d := range c {
		if !containsString(owners[d.Key], d.Provider) {
			owners[d.Key] = append(owners[d.Key], d.Provider)
		}
	}
	collisions := make(map[string][]string)
	for key, providers := range owners {
		if len(providers) > 1 {
			sort.Strings(providers)
			collisions[key] = providers
		}
	}
	return collisions
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Message 是一条会话上下文，按时间从旧到新排列。
// Timestamp 是来源平台的消息标识，不参与提示词。
type Message struct {
	Author    string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"ts,omitempty"`
}

// BuildPrompt 组装发送给后端的完整提示词。
func BuildPrompt(prompt string, context []Message) string {
	lines := make([]string, 0, len(context))
	for _, msg := range context {
		lines = append(lines, msg.Author+": "+msg.Text)
	}
	return "Prompt: " + prompt + "\nContext: " + strings.Join(lines, "\n")
}

// EstimateTokens 粗略估算 token 数（约 0.75 个单词一个 token），只用于指标与日志。
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) / 0.75)
}

// InvalidModel 构造 SetModel 的统一错误。
func InvalidModel(provider, key string) error {
	return xerrors.New(xerrors.CodeInvalidModel, "invalid model",
		xerrors.WithMetadata("provider", provider),
		xerrors.WithMetadata("model", key),
		xerrors.WithMetadata("reason", key))
}

// SelectModel 在静态目录中查找模型，供各适配器的 SetModel 复用。
func SelectModel(provider string, static Catalog, key string) (ModelDescriptor, error) {
	desc, ok := static.Lookup(key)
	if !ok {
		return ModelDescriptor{}, InvalidModel(provider, key)
	}
	return desc, nil
}

// ModelNotSet 在未调用 SetModel 就生成回复时返回。
func ModelNotSet(provider string) error {
	return xerrors.New(xerrors.CodeInvalidModel, "model not set",
		xerrors.WithMetadata("provider", provider))
}
