package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"Sailor-Bot/internal/config"
	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog   Channel = "log"
	ChannelSlack Channel = "slack"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Provider   string
	Model      string
	UserID     string
	Metadata   map[string]string
	OccurredAt time.Time
}

// FromError 从带错误码的错误构造告警事件；不需要告警的错误返回 false。
func FromError(err error) (Event, bool) {
	e, ok := xerrors.From(err)
	if !ok || !e.ShouldAlert() {
		return Event{}, false
	}
	return Event{
		Code:       e.Code(),
		Message:    xerrors.UserMessage(err),
		Severity:   e.Severity(),
		Metadata:   e.Metadata(),
		OccurredAt: time.Now().UTC(),
	}, true
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher，同一渠道只保留最后一个通知器。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// New 按配置组装告警渠道：日志始终启用，配置了 webhook 时追加 Slack。
func New(cfg config.AlertingConfig) *FanoutDispatcher {
	notifiers := []Notifier{LogNotifier{}}
	if url := strings.TrimSpace(cfg.SlackWebhookURL); url != "" {
		notifiers = append(notifiers, &SlackNotifier{Sender: &WebhookSender{URL: url}})
	}
	return NewFanout(notifiers...)
}

// LogNotifier 把告警写入审计日志。
type LogNotifier struct{}

// Channel 返回日志渠道。
func (LogNotifier) Channel() Channel { return ChannelLog }

// Notify 记录告警。
func (LogNotifier) Notify(_ context.Context, event Event) error {
	logger.Audit().Warn("告警",
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("provider", event.Provider),
		slog.String("model", event.Model),
		slog.String("user_id", event.UserID),
		slog.String("message", event.Message))
	return nil
}

// SlackSender 负责向 Slack 发送一段文本。
type SlackSender interface {
	Send(ctx context.Context, content string) error
}

// WebhookSender 通过 Slack incoming webhook 发送消息。
type WebhookSender struct {
	URL        string
	HTTPClient *http.Client
}

// Send 实现 SlackSender 接口。
func (s *WebhookSender) Send(ctx context.Context, content string) error {
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return slack.PostWebhookCustomHTTPContext(ctx, s.URL, client, &slack.WebhookMessage{Text: content})
}

// SlackNotifier 通过 Slack 发送告警。
type SlackNotifier struct {
	Sender SlackSender
}

// Channel 返回 Slack 渠道。
func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

// Notify 发送 Slack 消息。
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil {
		logger.L().Warn("SlackNotifier 未正确配置，跳过发送", slog.String("code", string(event.Code)))
		return nil
	}
	return n.Sender.Send(ctx, Format(event))
}

// Format 把事件渲染为一条 Slack mrkdwn 文本。
func Format(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*[%s]* %s - %s", event.Severity, event.Code, event.Message)
	if event.Provider != "" {
		fmt.Fprintf(&b, "\nprovider: %s", event.Provider)
		if event.Model != "" {
			fmt.Fprintf(&b, " (%s)", event.Model)
		}
	}
	if event.UserID != "" {
		fmt.Fprintf(&b, "\nuser: %s", event.UserID)
	}
	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, event.Metadata[k])
	}
	return b.String()
}
