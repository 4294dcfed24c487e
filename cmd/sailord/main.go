package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"Sailor-Bot/internal/agent"
	"Sailor-Bot/internal/api"
	"Sailor-Bot/internal/config"
	"Sailor-Bot/internal/events"
	"Sailor-Bot/internal/knowledge"
	"Sailor-Bot/internal/llm/provider"
	"Sailor-Bot/internal/observability/alerting"
	"Sailor-Bot/internal/slackbot"
	"Sailor-Bot/internal/state"
	"Sailor-Bot/pkg/logger"
)

// main 是 Sailor 机器人进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("sailord 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	// .env 不存在时直接使用进程环境变量。
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SAILOR_CONFIG"))
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named("sailord")

	registry := provider.NewRegistry(cfg.Providers)
	if err := registry.CheckCollisions(); err != nil {
		return err
	}
	if !registry.Validate(cfg.Agent.DefaultProvider, cfg.Agent.DefaultModel) {
		lg.Warn("默认模型当前不可用，回复将返回配置错误",
			slog.String("provider", cfg.Agent.DefaultProvider),
			slog.String("model", cfg.Agent.DefaultModel))
	}

	store, err := state.Open(ctx, cfg.State)
	switch {
	case state.IsDisabled(err):
		lg.Info("未配置用户状态存储，所有请求使用默认模型")
		store = nil
	case err != nil:
		lg.Warn("用户状态存储不可用，所有请求使用默认模型", slog.String("error", err.Error()))
		store = nil
	default:
		defer store.Close()
	}

	publisher, err := events.Open(cfg.Events)
	if err != nil {
		lg.Warn("事件发布不可用", slog.String("error", err.Error()))
		publisher = events.Noop{}
	}
	defer publisher.Close()

	orchestrator := agent.New(registry,
		agent.WithStore(store),
		agent.WithPublisher(publisher),
		agent.WithAlerter(alerting.New(cfg.Alerting)),
		agent.WithDefaults(cfg.Agent.DefaultProvider, cfg.Agent.DefaultModel),
		agent.WithSystemContent(cfg.Agent.SystemContent))

	jobs, err := knowledge.OpenJobStore(ctx, cfg.Knowledge, cfg.State)
	if err != nil {
		lg.Warn("索引任务存储不可用，改用内存存储", slog.String("error", err.Error()))
		jobs = knowledge.NewMemoryJobStore()
	}
	indexing := knowledge.NewService(
		knowledge.NewClient(knowledge.Config{Token: cfg.Knowledge.APIToken, BaseURL: cfg.Knowledge.BaseURL}),
		jobs,
		knowledge.WithDefaults(cfg.Knowledge.KnowledgeBaseID, cfg.Knowledge.DataSourceID),
		knowledge.WithPublisher(publisher))

	webAPI, socketClient, err := slackbot.NewSlackClients(cfg.Slack)
	if err != nil {
		return err
	}
	bot := slackbot.New(slackbot.NewWebMessenger(webAPI), orchestrator,
		slackbot.WithIndexer(indexing),
		slackbot.WithHistoryLimit(cfg.Agent.HistoryLimit))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return api.NewServer(cfg.Server.Address).Start(gctx)
	})
	group.Go(func() error {
		return slackbot.NewRunner(socketClient, bot, 0).Run(gctx)
	})

	lg.Info("Sailor 已启动",
		slog.String("health_address", cfg.Server.Address),
		slog.String("default_provider", cfg.Agent.DefaultProvider),
		slog.String("default_model", cfg.Agent.DefaultModel))
	return group.Wait()
}
