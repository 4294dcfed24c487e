package slackbot

import (
	"context"

	"github.com/slack-go/slack"

	"Sailor-Bot/internal/llm"
)

// Messenger 是处理器访问 Slack Web API 的最小接口，便于在测试中替换。
type Messenger interface {
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)
	UpdateMessage(ctx context.Context, channelID, ts, text string) error
	PublishHome(ctx context.Context, userID string, view slack.HomeTabViewRequest) error
	// ChannelHistory 返回频道最近的消息，按时间从旧到新排列。
	ChannelHistory(ctx context.Context, channelID string, limit int) ([]llm.Message, error)
	// ThreadReplies 返回线程内最近的 limit 条消息（可能含根消息），按时间从旧到新排列。
	ThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]llm.Message, error)
}

// WebMessenger 基于 slack-go 的 Web API 客户端实现 Messenger。
type WebMessenger struct {
	api *slack.Client
}

var _ Messenger = (*WebMessenger)(nil)

// NewWebMessenger 包装一个已认证的 Slack 客户端。
func NewWebMessenger(api *slack.Client) *WebMessenger {
	return &WebMessenger{api: api}
}

// PostEphemeral 实现 Messenger 接口。
func (m *WebMessenger) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	_, err := m.api.PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false))
	return err
}

// PostMessage 实现 Messenger 接口。threadTS 为空时发到频道顶层。
func (m *WebMessenger) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := m.api.PostMessageContext(ctx, channelID, opts...)
	return ts, err
}

// UpdateMessage 实现 Messenger 接口。
func (m *WebMessenger) UpdateMessage(ctx context.Context, channelID, ts, text string) error {
	_, _, _, err := m.api.UpdateMessageContext(ctx, channelID, ts, slack.MsgOptionText(text, false))
	return err
}

// PublishHome 实现 Messenger 接口。
func (m *WebMessenger) PublishHome(ctx context.Context, userID string, view slack.HomeTabViewRequest) error {
	_, err := m.api.PublishViewContext(ctx, userID, view, "")
	return err
}

// ChannelHistory 实现 Messenger 接口。Slack 按从新到旧返回，这里翻转顺序。
func (m *WebMessenger) ChannelHistory(ctx context.Context, channelID string, limit int) ([]llm.Message, error) {
	resp, err := m.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		if msg, ok := toMessage(resp.Messages[i]); ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// ThreadReplies 实现 Messenger 接口。Slack 从根消息开始按页返回，
// 这里翻到最后一页，只保留最近的 limit 条。
func (m *WebMessenger) ThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]llm.Message, error) {
	var out []llm.Message
	cursor := ""
	for {
		msgs, hasMore, next, err := m.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Cursor:    cursor,
			Limit:     limit,
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range msgs {
			if msg, ok := toMessage(raw); ok {
				out = append(out, msg)
			}
		}
		if limit > 0 && len(out) > limit {
			out = append(out[:0], out[len(out)-limit:]...)
		}
		if !hasMore || next == "" {
			return out, nil
		}
		cursor = next
	}
}

func toMessage(m slack.Message) (llm.Message, bool) {
	if m.Text == "" {
		return llm.Message{}, false
	}
	author := m.User
	if author == "" {
		author = m.BotID
	}
	return llm.Message{Author: author, Text: m.Text, Timestamp: m.Timestamp}, true
}
