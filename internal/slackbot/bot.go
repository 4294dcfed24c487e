package slackbot

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"Sailor-Bot/internal/agent"
	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/internal/home"
	"Sailor-Bot/internal/knowledge"
	"Sailor-Bot/internal/llm"
	"Sailor-Bot/internal/state"
	"Sailor-Bot/pkg/logger"
)

// Orchestrator 是处理器依赖的回复生成与模型选择能力。
type Orchestrator interface {
	Generate(ctx context.Context, req agent.GenerateRequest) (string, error)
	Select(ctx context.Context, userID, provider, model string) (state.UserIdentity, error)
	Current(ctx context.Context, userID string) (*state.UserIdentity, bool)
	Catalog() llm.Catalog
}

// Indexer 是知识库索引命令依赖的能力。
type Indexer interface {
	StartIndexing(ctx context.Context, channelID, dataSourceArg string) (knowledge.StartResult, error)
	Progress(ctx context.Context, channelID string) (knowledge.IndexingJob, error)
}

const (
	defaultHistoryLimit = 100
	threadContextLimit  = 10
)

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// Bot 把 Slack 的命令、事件和交互转换成对 Orchestrator 的调用。
type Bot struct {
	messenger    Messenger
	orchestrator Orchestrator
	indexer      Indexer
	historyLimit int
	log          *slog.Logger
}

// Option 定义可选的 Bot 配置。
type Option func(*Bot)

// WithIndexer 启用 /update-debbie 与 /debbie-progress。
func WithIndexer(indexer Indexer) Option {
	return func(b *Bot) {
		b.indexer = indexer
	}
}

// WithHistoryLimit 设置频道摘要读取的消息条数。
func WithHistoryLimit(limit int) Option {
	return func(b *Bot) {
		if limit > 0 {
			b.historyLimit = limit
		}
	}
}

// WithLogger 替换默认的日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.log = l
		}
	}
}

// New 创建 Bot。
func New(messenger Messenger, orchestrator Orchestrator, opts ...Option) *Bot {
	b := &Bot{
		messenger:    messenger,
		orchestrator: orchestrator,
		historyLimit: defaultHistoryLimit,
		log:          logger.Named("slackbot"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// HandleCommand 处理 slash 命令，结果以仅本人可见的消息返回。
func (b *Bot) HandleCommand(ctx context.Context, cmd slack.SlashCommand) {
	log := b.log.With(
		slog.String("command", cmd.Command),
		slog.String("user_id", cmd.UserID),
		slog.String("channel_id", cmd.ChannelID))

	var reply string
	switch cmd.Command {
	case CommandAsk:
		reply = b.ask(ctx, cmd)
	case CommandSummary:
		reply = b.summarizeChannel(ctx, cmd, log)
	case CommandIndex:
		reply = b.startIndexing(ctx, cmd, log)
	case CommandProgress:
		reply = b.indexingProgress(ctx, cmd, log)
	default:
		log.Warn("忽略未知命令")
		return
	}
	if err := b.messenger.PostEphemeral(ctx, cmd.ChannelID, cmd.UserID, reply); err != nil {
		log.Error("发送命令回复失败", slog.String("error", err.Error()))
	}
}

func (b *Bot) ask(ctx context.Context, cmd slack.SlashCommand) string {
	prompt := strings.TrimSpace(cmd.Text)
	if prompt == "" {
		return EmptyPromptText
	}
	answer, err := b.orchestrator.Generate(ctx, agent.GenerateRequest{UserID: cmd.UserID, Prompt: prompt})
	if err != nil {
		return errorText(err)
	}
	return "*" + CommandAsk + " " + prompt + "*\n\n" + answer
}

func (b *Bot) summarizeChannel(ctx context.Context, cmd slack.SlashCommand, log *slog.Logger) string {
	history, err := b.messenger.ChannelHistory(ctx, cmd.ChannelID, b.historyLimit)
	if err != nil {
		log.Error("读取频道历史失败", slog.String("error", err.Error()))
		return errorText(err)
	}
	summary, err := b.orchestrator.Generate(ctx, agent.GenerateRequest{
		UserID:  cmd.UserID,
		Prompt:  SummarizeChannelPrompt,
		Context: history,
	})
	if err != nil {
		return errorText(err)
	}
	return summary
}

func (b *Bot) startIndexing(ctx context.Context, cmd slack.SlashCommand, log *slog.Logger) string {
	if b.indexer == nil {
		return IndexingUnavailableText
	}
	res, err := b.indexer.StartIndexing(ctx, cmd.ChannelID, cmd.Text)
	if err != nil {
		log.Warn("发起索引失败", slog.String("error", err.Error()))
		return indexingErrorText("Failed to start indexing job", err)
	}
	return res.Message()
}

func (b *Bot) indexingProgress(ctx context.Context, cmd slack.SlashCommand, log *slog.Logger) string {
	if b.indexer == nil {
		return IndexingUnavailableText
	}
	job, err := b.indexer.Progress(ctx, cmd.ChannelID)
	if err != nil {
		log.Warn("查询索引进度失败", slog.String("error", err.Error()))
		return indexingErrorText("Failed to get progress", err)
	}
	return knowledge.ProgressMessage(job)
}

// HandleAppHomeOpened 为打开 Home 标签页的用户发布模型选择视图。
func (b *Bot) HandleAppHomeOpened(ctx context.Context, ev *slackevents.AppHomeOpenedEvent) {
	if ev == nil || ev.Tab != "home" {
		return
	}
	b.publishHome(ctx, ev.User)
}

func (b *Bot) publishHome(ctx context.Context, userID string) {
	current, _ := b.orchestrator.Current(ctx, userID)
	view := HomeView(home.Render(b.orchestrator.Catalog(), current))
	if err := b.messenger.PublishHome(ctx, userID, view); err != nil {
		b.log.Error("发布 Home 视图失败",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
}

// HandleAppMention 在线程内回复 @ 提及，线程内已有的消息作为上下文。
func (b *Bot) HandleAppMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev == nil || ev.BotID != "" {
		return
	}
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	text := strings.TrimSpace(mentionPattern.ReplaceAllString(ev.Text, ""))
	if text == "" {
		if _, err := b.messenger.PostMessage(ctx, ev.Channel, threadTS, MentionWithoutText); err != nil {
			b.log.Error("发送提示失败", slog.String("error", err.Error()))
		}
		return
	}

	var history []llm.Message
	if ev.ThreadTimeStamp != "" {
		history = b.threadContext(ctx, ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp)
		if isSummaryRequest(text) {
			text = SummarizeThreadPrompt
		}
	}
	b.reply(ctx, ev.Channel, threadTS, ev.User, text, history)
}

// isSummaryRequest 识别线程内 "@bot summarize" 一类的请求。
func isSummaryRequest(text string) bool {
	switch strings.ToLower(strings.Trim(text, " .!?")) {
	case "summarize", "summarise", "summary", "summarize this thread", "tl;dr", "tldr":
		return true
	}
	return false
}

// HandleMessage 回复私信；机器人消息与带 subtype 的消息被忽略。
func (b *Bot) HandleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev == nil || ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" || ev.User == "" {
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	var history []llm.Message
	threadTS := ev.ThreadTimeStamp
	if threadTS != "" {
		history = b.threadContext(ctx, ev.Channel, threadTS, ev.TimeStamp)
	} else {
		recent, err := b.messenger.ChannelHistory(ctx, ev.Channel, threadContextLimit)
		if err != nil {
			b.log.Warn("读取私信历史失败", slog.String("error", err.Error()))
		}
		history = withoutMessage(recent, ev.TimeStamp)
		threadTS = ev.TimeStamp
	}
	b.reply(ctx, ev.Channel, threadTS, ev.User, text, history)
}

// threadContext 返回线程内除当前消息以外的消息。
func (b *Bot) threadContext(ctx context.Context, channelID, threadTS, currentTS string) []llm.Message {
	replies, err := b.messenger.ThreadReplies(ctx, channelID, threadTS, threadContextLimit)
	if err != nil {
		b.log.Warn("读取线程消息失败",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()))
		return nil
	}
	return withoutMessage(replies, currentTS)
}

// withoutMessage 去掉时间戳为 ts 的消息，也就是触发本次回复的那一条。
func withoutMessage(msgs []llm.Message, ts string) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, msg := range msgs {
		if ts != "" && msg.Timestamp == ts {
			continue
		}
		out = append(out, msg)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// reply 先发送加载提示，再用生成结果或错误信息替换它。
func (b *Bot) reply(ctx context.Context, channelID, threadTS, userID, prompt string, history []llm.Message) {
	log := b.log.With(slog.String("channel_id", channelID), slog.String("user_id", userID))

	ts, err := b.messenger.PostMessage(ctx, channelID, threadTS, LoadingText)
	if err != nil {
		log.Error("发送加载提示失败", slog.String("error", err.Error()))
		return
	}

	answer, err := b.orchestrator.Generate(ctx, agent.GenerateRequest{
		UserID:  userID,
		Prompt:  prompt,
		Context: history,
	})
	if err != nil {
		answer = errorText(err)
	}
	if err := b.messenger.UpdateMessage(ctx, channelID, ts, answer); err != nil {
		log.Error("更新回复失败", slog.String("error", err.Error()))
	}
}

// HandleBlockActions 处理 Home 视图中的模型选择。保存失败时私信告知用户，Home 视图保持原选择。
func (b *Bot) HandleBlockActions(ctx context.Context, cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions {
		return
	}
	userID := cb.User.ID
	handled := false
	for _, action := range cb.ActionCallback.BlockActions {
		if action == nil || action.ActionID != ActionPickProvider {
			continue
		}
		handled = true
		model, provider, ok := home.ParseValue(action.SelectedOption.Value)
		if !ok {
			continue
		}
		if _, err := b.orchestrator.Select(ctx, userID, provider, model); err != nil {
			b.log.Warn("保存模型选择失败",
				slog.String("user_id", userID),
				slog.String("provider", provider),
				slog.String("model", model),
				slog.String("code", string(xerrors.CodeOf(err))),
				slog.String("error", err.Error()))
			// Home 视图没有消息区，错误通过私信告知用户。
			if _, postErr := b.messenger.PostMessage(ctx, userID, "", errorText(err)); postErr != nil {
				b.log.Error("发送选择失败提示失败", slog.String("error", postErr.Error()))
			}
		}
	}
	if handled {
		b.publishHome(ctx, userID)
	}
}

func errorText(err error) string {
	return errorPrefix + xerrors.UserMessage(err)
}

func indexingErrorText(prefix string, err error) string {
	var apiErr *knowledge.APIError
	if stdErrors.As(err, &apiErr) {
		return prefix + ". Status: " + strconv.Itoa(apiErr.StatusCode) + ", Response: " + apiErr.Message
	}
	return xerrors.UserMessage(err)
}
