package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"Sailor-Bot/internal/config"
	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/internal/events"
	"Sailor-Bot/internal/llm"
	"Sailor-Bot/internal/llm/provider"
	"Sailor-Bot/internal/observability/alerting"
	"Sailor-Bot/internal/state"
)

type capturedRequest struct {
	Path          string
	Authorization string
	Model         string
	System        string
	Prompt        string
	MaxTokens     int
}

// chatBackend is an OpenAI-compatible fake that records every request.
type chatBackend struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	body     string
}

func newChatBackend(t *testing.T, reply string) (*chatBackend, *httptest.Server) {
	t.Helper()
	b := &chatBackend{status: http.StatusOK}
	b.body = `{"choices":[{"message":{"role":"assistant","content":` + quote(reply) + `}}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		req := capturedRequest{
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Model:         payload.Model,
			MaxTokens:     payload.MaxTokens,
		}
		for _, m := range payload.Messages {
			switch m.Role {
			case "system":
				req.System = m.Content
			case "user":
				req.Prompt = m.Content
			}
		}
		b.mu.Lock()
		b.requests = append(b.requests, req)
		status, body := b.status, b.body
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *chatBackend) fail(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status, b.body = status, body
}

func (b *chatBackend) calls() []capturedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedRequest(nil), b.requests...)
}

func quote(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func TestGenerateFallsBackToDefaultWithoutSelection(t *testing.T) {
	genaiBackend, genaiSrv := newChatBackend(t, "hello from the agent")
	registry := provider.NewRegistry(config.ProvidersConfig{
		GenAI: config.ProviderCredentials{BaseURL: genaiSrv.URL + "/api/v1"},
	})
	ag := New(registry, WithStore(state.NewMemoryStore()))

	got, err := ag.Generate(context.Background(), GenerateRequest{UserID: "u1", Prompt: "hello"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "hello from the agent" {
		t.Fatalf("unexpected reply %q", got)
	}

	calls := genaiBackend.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one backend call, got %d", len(calls))
	}
	call := calls[0]
	if call.Path != "/api/v1/chat/completions" || call.Model != "genai-agent" || call.MaxTokens != 2048 {
		t.Fatalf("unexpected request %+v", call)
	}
	if call.Prompt != "Prompt: hello\nContext: " {
		t.Fatalf("unexpected full prompt %q", call.Prompt)
	}
	if call.System != llm.DefaultSystemContent {
		t.Fatalf("default system content not used: %q", call.System)
	}
}

func TestGenerateUsesStoredSelection(t *testing.T) {
	openaiBackend, openaiSrv := newChatBackend(t, "gpt says hi")
	genaiBackend, genaiSrv := newChatBackend(t, "wrong backend")
	registry := provider.NewRegistry(config.ProvidersConfig{
		OpenAI: config.ProviderCredentials{APIKey: "sk-test", BaseURL: openaiSrv.URL},
		GenAI:  config.ProviderCredentials{APIKey: "g", BaseURL: genaiSrv.URL},
	})
	store := state.NewMemoryStore()
	if _, err := store.Set(context.Background(), state.UserIdentity{UserID: "u2", Provider: "openai", Model: "gpt-4"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	ag := New(registry, WithStore(store))

	got, err := ag.Generate(context.Background(), GenerateRequest{
		UserID:        "u2",
		Prompt:        "hi",
		Context:       []llm.Message{{Author: "u3", Text: "hey"}},
		SystemContent: "custom system",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "gpt says hi" {
		t.Fatalf("unexpected reply %q", got)
	}
	if n := len(genaiBackend.calls()); n != 0 {
		t.Fatalf("default backend should not be called, got %d calls", n)
	}
	calls := openaiBackend.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one openai call, got %d", len(calls))
	}
	call := calls[0]
	if call.Model != "gpt-4" || call.Prompt != "Prompt: hi\nContext: u3: hey" || call.System != "custom system" {
		t.Fatalf("unexpected request %+v", call)
	}
	if call.Authorization != "Bearer sk-test" {
		t.Fatalf("unexpected authorization %q", call.Authorization)
	}
}

func TestGeneratePropagatesBackendAuthenticationFailure(t *testing.T) {
	openaiBackend, openaiSrv := newChatBackend(t, "")
	openaiBackend.fail(http.StatusUnauthorized,
		`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	registry := provider.NewRegistry(config.ProvidersConfig{
		OpenAI: config.ProviderCredentials{APIKey: "sk-bad", BaseURL: openaiSrv.URL},
	})
	store := state.NewMemoryStore()
	_, _ = store.Set(context.Background(), state.UserIdentity{UserID: "u2", Provider: "openai", Model: "gpt-4"})
	alerts := &recordingAlerter{}
	ag := New(registry, WithStore(store), WithAlerter(alerts))

	_, err := ag.Generate(context.Background(), GenerateRequest{UserID: "u2", Prompt: "hi"})
	if !xerrors.HasCode(err, xerrors.CodeBackendAuthentication) {
		t.Fatalf("expected BACKEND_AUTHENTICATION, got %v", err)
	}
	if msg := xerrors.UserMessage(err); !strings.Contains(msg, "Incorrect API key provided") {
		t.Fatalf("reason missing from user message %q", msg)
	}
	if len(alerts.events) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts.events))
	}
	if ev := alerts.events[0]; ev.Code != xerrors.CodeBackendAuthentication || ev.Provider != "openai" || ev.Model != "gpt-4" || ev.UserID != "u2" {
		t.Fatalf("unexpected alert %+v", ev)
	}
}

type recordingAlerter struct {
	events []alerting.Event
}

func (r *recordingAlerter) Notify(_ context.Context, event alerting.Event) error {
	r.events = append(r.events, event)
	return nil
}

func TestRateLimitDoesNotAlert(t *testing.T) {
	genaiBackend, genaiSrv := newChatBackend(t, "")
	genaiBackend.fail(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`)
	registry := provider.NewRegistry(config.ProvidersConfig{GenAI: config.ProviderCredentials{BaseURL: genaiSrv.URL}})
	alerts := &recordingAlerter{}

	_, err := New(registry, WithAlerter(alerts)).Generate(context.Background(), GenerateRequest{UserID: "u1", Prompt: "hi"})
	if !xerrors.HasCode(err, xerrors.CodeBackendRateLimit) {
		t.Fatalf("expected BACKEND_RATE_LIMIT, got %v", err)
	}
	if len(alerts.events) != 0 {
		t.Fatalf("rate limits must not alert, got %+v", alerts.events)
	}
}

type brokenStore struct{ state.MemoryStore }

func (*brokenStore) Get(context.Context, string) (state.UserIdentity, error) {
	return state.UserIdentity{}, xerrors.Wrap(xerrors.CodeStoreUnavailable, errors.New("dial tcp: connection refused"), "redis down")
}

func TestGenerateNeverFailsOnStore(t *testing.T) {
	genaiBackend, genaiSrv := newChatBackend(t, "default reply")
	registry := provider.NewRegistry(config.ProvidersConfig{
		OpenAI: config.ProviderCredentials{APIKey: "sk"},
		GenAI:  config.ProviderCredentials{BaseURL: genaiSrv.URL},
	})

	stale := state.NewMemoryStore()
	_, _ = stale.Set(context.Background(), state.UserIdentity{UserID: "u1", Provider: "anthropic", Model: "claude-3-opus-20240229"})
	mismatched := state.NewMemoryStore()
	_, _ = mismatched.Set(context.Background(), state.UserIdentity{UserID: "u1", Provider: "openai", Model: "genai-agent"})

	cases := map[string]state.Store{
		"disabled":     nil,
		"unavailable":  &brokenStore{},
		"empty":        state.NewMemoryStore(),
		"unconfigured": stale,
		"mismatched":   mismatched,
		"lazy": state.NewLazyStore(func(context.Context) (state.Store, error) {
			return nil, errors.New("connection refused")
		}, time.Minute),
	}
	for name, store := range cases {
		ag := New(registry, WithStore(store))
		got, err := ag.Generate(context.Background(), GenerateRequest{UserID: "u1", Prompt: "hello"})
		if err != nil {
			t.Fatalf("%s: generate failed: %v", name, err)
		}
		if got != "default reply" {
			t.Fatalf("%s: unexpected reply %q", name, got)
		}
	}
	if n := len(genaiBackend.calls()); n != len(cases) {
		t.Fatalf("expected %d default backend calls, got %d", len(cases), n)
	}
}

func TestGenerateWithConfiguredDefaults(t *testing.T) {
	openaiBackend, openaiSrv := newChatBackend(t, "ok")
	registry := provider.NewRegistry(config.ProvidersConfig{
		OpenAI: config.ProviderCredentials{APIKey: "sk", BaseURL: openaiSrv.URL},
	})
	ag := New(registry, WithDefaults("openai", "gpt-4o-mini"))

	if _, err := ag.Generate(context.Background(), GenerateRequest{UserID: "u9", Prompt: "x"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if calls := openaiBackend.calls(); len(calls) != 1 || calls[0].Model != "gpt-4o-mini" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestGenerateInvalidDefaultPropagates(t *testing.T) {
	registry := provider.NewRegistry(config.ProvidersConfig{})
	ag := New(registry, WithDefaults("mistral", "large"))
	if _, err := ag.Generate(context.Background(), GenerateRequest{UserID: "u1", Prompt: "x"}); !xerrors.HasCode(err, xerrors.CodeUnknownProvider) {
		t.Fatalf("expected UNKNOWN_PROVIDER, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	registry := provider.NewRegistry(config.ProvidersConfig{
		Anthropic: config.ProviderCredentials{APIKey: "ak"},
	})
	store := state.NewMemoryStore()
	publisher := &events.Memory{}
	ag := New(registry, WithStore(store), WithPublisher(publisher))
	ctx := context.Background()

	if _, err := ag.Select(ctx, "u1", "cohere", "command"); !xerrors.HasCode(err, xerrors.CodeUnknownProvider) {
		t.Fatalf("expected UNKNOWN_PROVIDER, got %v", err)
	}
	if _, err := ag.Select(ctx, "u1", "anthropic", "gpt-4"); !xerrors.HasCode(err, xerrors.CodeInvalidModel) {
		t.Fatalf("expected INVALID_MODEL, got %v", err)
	}
	if _, err := ag.Select(ctx, "u1", "openai", "gpt-4"); !xerrors.HasCode(err, xerrors.CodeInvalidModel) {
		t.Fatalf("unconfigured provider must be rejected, got %v", err)
	}

	identity, err := ag.Select(ctx, "u1", "Anthropic", "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if identity.Provider != "anthropic" {
		t.Fatalf("provider should be normalised, got %q", identity.Provider)
	}
	stored, err := store.Get(ctx, "u1")
	if err != nil || stored != identity {
		t.Fatalf("selection not stored: %+v %v", stored, err)
	}

	published := publisher.Events()
	if len(published) != 1 || published[0].Type != events.TypeSelectionChanged || published[0].Attributes["model"] != "claude-3-5-sonnet-20241022" {
		t.Fatalf("unexpected events %+v", published)
	}

	current, ok := ag.Current(ctx, "u1")
	if !ok || *current != identity {
		t.Fatalf("Current = %+v, %v", current, ok)
	}
	if _, ok := ag.Current(ctx, "nobody"); ok {
		t.Fatalf("unexpected selection for unknown user")
	}
}

func TestSelectWithoutStore(t *testing.T) {
	registry := provider.NewRegistry(config.ProvidersConfig{GenAI: config.ProviderCredentials{APIKey: "g"}})
	ag := New(registry)
	if _, err := ag.Select(context.Background(), "u1", "genai", "genai-agent"); !state.IsDisabled(err) {
		t.Fatalf("expected disabled store error, got %v", err)
	}
	if _, ok := ag.Current(context.Background(), "u1"); ok {
		t.Fatalf("no selection expected without store")
	}
}

func TestCatalogDelegatesToRegistry(t *testing.T) {
	registry := provider.NewRegistry(config.ProvidersConfig{GenAI: config.ProviderCredentials{APIKey: "g"}})
	if got := New(registry).Catalog(); len(got) != 1 || got[0].Key != "genai-agent" {
		t.Fatalf("unexpected catalog %+v", got)
	}
}
