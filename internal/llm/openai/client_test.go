package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "Sailor-Bot/internal/errors"
)

func TestModelsRequireAPIKey(t *testing.T) {
	if got := New(Config{}).Models(); len(got) != 0 {
		t.Fatalf("expected empty catalog without api key, got %d models", len(got))
	}
	got := New(Config{APIKey: "sk-test"}).Models()
	if len(got) != 4 {
		t.Fatalf("expected 4 models, got %d", len(got))
	}
	for _, m := range got {
		if m.Provider != ProviderKey || m.MaxTokens != 4096 {
			t.Fatalf("unexpected descriptor %+v", m)
		}
	}
}

func TestSetModelValidatesStaticCatalog(t *testing.T) {
	p := New(Config{})
	if err := p.SetModel("gpt-4"); err != nil {
		t.Fatalf("static model should be accepted without credentials: %v", err)
	}
	if err := p.SetModel("claude-3-opus-20240229"); !xerrors.HasCode(err, xerrors.CodeInvalidModel) {
		t.Fatalf("expected INVALID_MODEL, got %v", err)
	}
}

func TestGenerateRequiresModel(t *testing.T) {
	_, err := New(Config{APIKey: "k"}).GenerateResponse(context.Background(), "p", "s")
	if !xerrors.HasCode(err, xerrors.CodeInvalidModel) {
		t.Fatalf("expected INVALID_MODEL, got %v", err)
	}
}

func TestGenerateSuccess(t *testing.T) {
	var captured struct {
		Path          string
		Authorization string
		Body          chatRequest
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Authorization = r.Header.Get("Authorization")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ahoy"}},
			},
		})
	}))
	defer srv.Close()

	p := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	if err := p.SetModel("gpt-4"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	got, err := p.GenerateResponse(context.Background(), "Prompt: hi\nContext: ", "be brief")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ahoy" {
		t.Fatalf("unexpected reply %q", got)
	}

	if captured.Path != "/chat/completions" {
		t.Fatalf("unexpected path %q", captured.Path)
	}
	if captured.Authorization != "Bearer sk-test" {
		t.Fatalf("unexpected authorization header %q", captured.Authorization)
	}
	body := captured.Body
	if body.Model != "gpt-4" || body.N != 1 || body.MaxTokens != 4096 {
		t.Fatalf("unexpected request %+v", body)
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[0].Content != "be brief" ||
		body.Messages[1].Role != "user" || body.Messages[1].Content != "Prompt: hi\nContext: " {
		t.Fatalf("unexpected messages %+v", body.Messages)
	}
}

func TestGenerateClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		code   xerrors.Code
	}{
		{http.StatusUnauthorized, xerrors.CodeBackendAuthentication},
		{http.StatusTooManyRequests, xerrors.CodeBackendRateLimit},
		{http.StatusBadGateway, xerrors.CodeBackendStatus},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
		}))

		p := New(Config{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
		_ = p.SetModel("gpt-4o")
		_, err := p.GenerateResponse(context.Background(), "p", "s")
		srv.Close()

		if !xerrors.HasCode(err, tc.code) {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.code, err)
		}
		if xerrors.UserMessage(err) == "" {
			t.Fatalf("status %d: empty user message", tc.status)
		}
	}
}

func TestGenerateConnectivityFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := New(Config{APIKey: "k", BaseURL: url})
	_ = p.SetModel("gpt-4o-mini")
	if _, err := p.GenerateResponse(context.Background(), "p", "s"); !xerrors.HasCode(err, xerrors.CodeBackendConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}

func TestGenerateRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_ = p.SetModel("gpt-4")
	if _, err := p.GenerateResponse(context.Background(), "p", "s"); !xerrors.HasCode(err, xerrors.CodeBackendStatus) {
		t.Fatalf("expected BACKEND_STATUS, got %v", err)
	}
}
