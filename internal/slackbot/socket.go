package slackbot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"Sailor-Bot/internal/config"
	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/pkg/logger"
)

// Acker 确认 socket mode 的请求信封。
type Acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// Dispatch 确认信封并把事件路由到对应的处理器。
// 处理器中的错误只会被记录，不会向上传播。
func (b *Bot) Dispatch(ctx context.Context, evt socketmode.Event, acker Acker) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("处理 Slack 事件时发生 panic", slog.Any("panic", r), slog.String("type", string(evt.Type)))
		}
	}()

	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.log.Info("正在连接 Slack")
	case socketmode.EventTypeConnected:
		b.log.Info("已连接 Slack")
	case socketmode.EventTypeConnectionError:
		b.log.Warn("Slack 连接失败，等待重连")
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		ack(acker, evt.Request)
		b.HandleCommand(ctx, cmd)
	case socketmode.EventTypeEventsAPI:
		payload, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		ack(acker, evt.Request)
		if payload.Type != slackevents.CallbackEvent {
			return
		}
		switch ev := payload.InnerEvent.Data.(type) {
		case *slackevents.AppHomeOpenedEvent:
			b.HandleAppHomeOpened(ctx, ev)
		case *slackevents.AppMentionEvent:
			b.HandleAppMention(ctx, ev)
		case *slackevents.MessageEvent:
			b.HandleMessage(ctx, ev)
		default:
			b.log.Debug("忽略事件", slog.String("event", payload.InnerEvent.Type))
		}
	case socketmode.EventTypeInteractive:
		cb, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		ack(acker, evt.Request)
		b.HandleBlockActions(ctx, cb)
	default:
		if evt.Request != nil {
			ack(acker, evt.Request)
		}
	}
}

func ack(acker Acker, req *socketmode.Request) {
	if acker != nil && req != nil {
		acker.Ack(*req)
	}
}

// Runner 维护 socket mode 连接，并用固定数量的工作协程处理事件。
type Runner struct {
	client  *socketmode.Client
	bot     *Bot
	workers int
	log     *slog.Logger
}

// NewSlackClients 根据配置创建 Web API 客户端与 socket mode 客户端。
func NewSlackClients(cfg config.SlackConfig) (*slack.Client, *socketmode.Client, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, nil, xerrors.New(xerrors.CodeConfiguration, "slack tokens are required",
			xerrors.WithMetadata("reason", "set SLACK_BOT_TOKEN and SLACK_APP_TOKEN"))
	}
	slackLog := slog.NewLogLogger(logger.Named("slack").Handler(), slog.LevelDebug)
	api := slack.New(cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
		slack.OptionDebug(cfg.Debug),
		slack.OptionLog(slackLog))
	client := socketmode.New(api,
		socketmode.OptionDebug(cfg.Debug),
		socketmode.OptionLog(slackLog))
	return api, client, nil
}

// NewRunner 创建 Runner，workers 小于等于 0 时使用 8。
func NewRunner(client *socketmode.Client, bot *Bot, workers int) *Runner {
	if workers <= 0 {
		workers = 8
	}
	return &Runner{client: client, bot: bot, workers: workers, log: logger.Named("slackbot")}
}

// Run 阻塞直到上下文取消或连接循环退出。
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.client.RunContext(ctx)
	}()

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-r.client.Events:
					if !ok {
						return
					}
					r.bot.Dispatch(ctx, evt, r.client)
				}
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error("Slack 连接循环退出", slog.String("error", err.Error()))
		}
	}
	cancel()
	wg.Wait()
	return err
}
