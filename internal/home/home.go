// Package home builds the model picker shown on the bot's home surface. It is
// a pure function of the model catalog and the user's stored selection; the
// Slack adapter turns the result into blocks.
package home

import (
	"strings"

	"Sailor-Bot/internal/llm"
	"Sailor-Bot/internal/state"
)

// 用户尚未选择时追加的占位选项。
const (
	PlaceholderLabel = "Select a provider"
	PlaceholderValue = "null"
)

// Option 是选择器中的一项。
type Option struct {
	Label string
	Value string
}

// Selection 是有序的选项列表，以及初始选项的下标（-1 表示不预选）。
type Selection struct {
	Options []Option
	Initial int
}

// InitialOption 返回预选的选项。
func (s Selection) InitialOption() (Option, bool) {
	if s.Initial < 0 || s.Initial >= len(s.Options) {
		return Option{}, false
	}
	return s.Options[s.Initial], true
}

// EncodeValue 把模型与 provider 编码为选项值。
func EncodeValue(model, provider string) string {
	return model + " " + provider
}

// ParseValue 是 EncodeValue 的逆操作，占位选项与格式错误的值返回 false。
func ParseValue(value string) (model, provider string, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == PlaceholderValue {
		return "", "", false
	}
	idx := strings.LastIndex(value, " ")
	if idx <= 0 || idx == len(value)-1 {
		return "", "", false
	}
	return value[:idx], value[idx+1:], true
}

// Render 按目录顺序为每个模型生成一个选项。
//
// 没有当前选择时追加占位选项并预选它。有选择时优先完全匹配 "{model} {provider}"，
// 否则取第一个以模型 key 开头的选项；都不匹配（选择已失效）时不预选。
func Render(catalog llm.Catalog, current *state.UserIdentity) Selection {
	options := make([]Option, 0, len(catalog)+1)
	for _, d := range catalog {
		options = append(options, Option{
			Label: d.Name + " (" + d.ProviderName + ")",
			Value: EncodeValue(d.Key, d.Provider),
		})
	}

	if current == nil || current.Model == "" {
		options = append(options, Option{Label: PlaceholderLabel, Value: PlaceholderValue})
		return Selection{Options: options, Initial: len(options) - 1}
	}

	exact := EncodeValue(current.Model, strings.ToLower(current.Provider))
	initial := -1
	for i, opt := range options {
		if opt.Value == exact {
			return Selection{Options: options, Initial: i}
		}
		if initial < 0 && strings.HasPrefix(opt.Value, current.Model) {
			initial = i
		}
	}
	return Selection{Options: options, Initial: initial}
}
