package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/internal/events"
	"Sailor-Bot/internal/llm"
	"Sailor-Bot/internal/llm/genai"
	"Sailor-Bot/internal/observability/alerting"
	"Sailor-Bot/internal/observability/metrics"
	"Sailor-Bot/internal/state"
	"Sailor-Bot/pkg/logger"
)

// Registry 是 Agent 依赖的 provider 注册表能力。
type Registry interface {
	Resolve(name string) (llm.Provider, error)
	Validate(provider, model string) bool
	AvailableModels() llm.Catalog
}

// GenerateRequest 描述一次回复生成请求。
type GenerateRequest struct {
	UserID        string
	Prompt        string
	Context       []llm.Message
	SystemContent string
}

// 选择回退的原因，同时作为指标标签。
const (
	fallbackDisabled    = "store_disabled"
	fallbackUnavailable = "store_unavailable"
	fallbackNotFound    = "not_found"
	fallbackInvalid     = "invalid_selection"
)

// Agent 根据用户保存的选择调用对应的大模型后端。
type Agent struct {
	registry        Registry
	store           state.Store
	publisher       events.Publisher
	alerter         alerting.Dispatcher
	defaultProvider string
	defaultModel    string
	systemContent   string
	log             *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithStore 设置用户状态存储；nil 表示未启用存储。
func WithStore(store state.Store) Option {
	return func(a *Agent) {
		a.store = store
	}
}

// WithPublisher 设置领域事件的发布者。
func WithPublisher(p events.Publisher) Option {
	return func(a *Agent) {
		if p != nil {
			a.publisher = p
		}
	}
}

// WithAlerter 设置严重错误的告警派发器。
func WithAlerter(d alerting.Dispatcher) Option {
	return func(a *Agent) {
		a.alerter = d
	}
}

// WithDefaults 设置没有有效选择时使用的 provider 与模型。
func WithDefaults(provider, model string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(provider) != "" && strings.TrimSpace(model) != "" {
			a.defaultProvider, a.defaultModel = provider, model
		}
	}
}

// WithSystemContent 覆盖默认的系统指令。
func WithSystemContent(content string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(content) != "" {
			a.systemContent = content
		}
	}
}

// WithLogger 替换默认的日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// New 创建一个 Agent。
func New(registry Registry, opts ...Option) *Agent {
	ag := &Agent{
		registry:        registry,
		publisher:       events.Noop{},
		defaultProvider: genai.ProviderKey,
		defaultModel:    genai.DefaultModel,
		systemContent:   llm.DefaultSystemContent,
		log:             logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// Generate 解析用户的选择并生成回复。
// 只有选择查询会吸收错误（回退到默认 provider），其余错误原样返回。
func (a *Agent) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	log := a.log.With(slog.String("request_id", uuid.NewString()), slog.String("user_id", req.UserID))

	fullPrompt := llm.BuildPrompt(req.Prompt, req.Context)
	promptTokens := llm.EstimateTokens(fullPrompt)

	selection := a.lookupSelection(ctx, req.UserID, log)
	log = log.With(slog.String("provider", selection.Provider), slog.String("model", selection.Model))

	provider, err := a.registry.Resolve(selection.Provider)
	if err != nil {
		log.Error("解析 provider 失败", slog.String("error", err.Error()))
		return "", err
	}
	if err := provider.SetModel(selection.Model); err != nil {
		log.Error("设置模型失败", slog.String("error", err.Error()))
		return "", err
	}

	systemContent := req.SystemContent
	if strings.TrimSpace(systemContent) == "" {
		systemContent = a.systemContent
	}

	log.Info("开始生成回复",
		slog.Int("context_messages", len(req.Context)),
		slog.Int("estimated_prompt_tokens", promptTokens))

	start := time.Now()
	reply, err := provider.GenerateResponse(ctx, fullPrompt, systemContent)
	elapsed := time.Since(start)
	if err != nil {
		code := xerrors.CodeOf(err)
		metrics.ObserveGeneration(selection.Provider, selection.Model, string(code), elapsed)
		log.Error("生成回复失败",
			slog.String("code", string(code)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		a.alert(ctx, err, selection, log)
		return "", err
	}

	responseTokens := llm.EstimateTokens(reply)
	metrics.ObserveGeneration(selection.Provider, selection.Model, "ok", elapsed)
	metrics.AddEstimatedTokens(selection.Provider, metrics.DirectionPrompt, promptTokens)
	metrics.AddEstimatedTokens(selection.Provider, metrics.DirectionResponse, responseTokens)
	log.Info("回复生成完成",
		slog.Duration("elapsed", elapsed),
		slog.Int("estimated_response_tokens", responseTokens))
	return reply, nil
}

func (a *Agent) alert(ctx context.Context, err error, selection state.UserIdentity, log *slog.Logger) {
	if a.alerter == nil {
		return
	}
	event, ok := alerting.FromError(err)
	if !ok {
		return
	}
	event.Provider, event.Model, event.UserID = selection.Provider, selection.Model, selection.UserID
	if notifyErr := a.alerter.Notify(ctx, event); notifyErr != nil {
		log.Warn("发送告警失败", slog.String("error", notifyErr.Error()))
	}
}

// lookupSelection 永远不会失败：存储未启用、不可达、没有记录或记录失效时都回退到默认值。
func (a *Agent) lookupSelection(ctx context.Context, userID string, log *slog.Logger) state.UserIdentity {
	fallback := func(reason string, attrs ...any) state.UserIdentity {
		metrics.IncSelectionFallback(reason)
		log.Info("使用默认 provider", append([]any{slog.String("reason", reason)}, attrs...)...)
		return state.UserIdentity{UserID: userID, Provider: a.defaultProvider, Model: a.defaultModel}
	}

	if a.store == nil {
		return fallback(fallbackDisabled)
	}
	identity, err := a.store.Get(ctx, userID)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeStateNotFound) {
			return fallback(fallbackNotFound)
		}
		log.Warn("读取用户选择失败", slog.String("error", err.Error()))
		return fallback(fallbackUnavailable)
	}
	if !a.registry.Validate(identity.Provider, identity.Model) {
		return fallback(fallbackInvalid,
			slog.String("stored_provider", identity.Provider),
			slog.String("stored_model", identity.Model))
	}
	return identity
}

// Select 校验并保存用户的 provider/模型选择。
func (a *Agent) Select(ctx context.Context, userID, providerName, model string) (state.UserIdentity, error) {
	if strings.TrimSpace(userID) == "" {
		return state.UserIdentity{}, xerrors.New(xerrors.CodeInvalidArgument, "user id is required")
	}
	provider, err := a.registry.Resolve(providerName)
	if err != nil {
		return state.UserIdentity{}, err
	}
	if !a.registry.Validate(provider.Name(), model) {
		return state.UserIdentity{}, xerrors.New(xerrors.CodeInvalidModel, "invalid model",
			xerrors.WithMetadata("provider", provider.Name()),
			xerrors.WithMetadata("model", model),
			xerrors.WithMetadata("reason", model))
	}
	if a.store == nil {
		return state.UserIdentity{}, state.ErrStoreDisabled
	}

	identity := state.UserIdentity{UserID: userID, Provider: provider.Name(), Model: model}
	if _, err := a.store.Set(ctx, identity); err != nil {
		a.log.Error("保存用户选择失败",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return state.UserIdentity{}, err
	}

	logger.Audit().Info("用户切换模型",
		slog.String("user_id", userID),
		slog.String("provider", identity.Provider),
		slog.String("model", identity.Model))

	event := events.New(events.TypeSelectionChanged, map[string]string{
		"user_id":  userID,
		"provider": identity.Provider,
		"model":    identity.Model,
	})
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.log.Warn("发布选择变更事件失败", slog.String("error", err.Error()))
	}
	return identity, nil
}

// Current 返回用户当前保存的选择；没有记录或存储不可用时返回 false，不替换默认值。
func (a *Agent) Current(ctx context.Context, userID string) (*state.UserIdentity, bool) {
	if a.store == nil {
		return nil, false
	}
	identity, err := a.store.Get(ctx, userID)
	if err != nil {
		if !xerrors.HasCode(err, xerrors.CodeStateNotFound) {
			a.log.Warn("读取用户选择失败",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
		return nil, false
	}
	return &identity, true
}

// Catalog 返回当前可选的全部模型。
func (a *Agent) Catalog() llm.Catalog {
	return a.registry.AvailableModels()
}
