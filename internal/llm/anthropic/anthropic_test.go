package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "Sailor-Bot/internal/errors"
)

func TestModelsRequireAPIKey(t *testing.T) {
	if len(New(Config{}).Models()) != 0 {
		t.Fatalf("expected empty catalog without key")
	}
	got := New(Config{APIKey: "k"}).Models()
	if len(got) != 3 {
		t.Fatalf("expected 3 models, got %d", len(got))
	}
	if d, _ := got.Lookup("claude-3-opus-20240229"); d.MaxTokens != 4096 {
		t.Fatalf("unexpected opus limit %d", d.MaxTokens)
	}
}

func TestGenerateSendsMessagesRequest(t *testing.T) {
	var (
		headers http.Header
		body    messagesRequest
		path    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers, path = r.Header.Clone(), r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Fair "},{"type":"text","text":"winds"}]}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "ak", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err := p.SetModel("claude-3-5-haiku-20241022"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	got, err := p.GenerateResponse(context.Background(), "Prompt: hi\nContext: ", "sys")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Fair winds" {
		t.Fatalf("unexpected reply %q", got)
	}
	if path != "/v1/messages" {
		t.Fatalf("unexpected path %q", path)
	}
	if headers.Get("x-api-key") != "ak" || headers.Get("anthropic-version") != apiVersion {
		t.Fatalf("unexpected headers %v", headers)
	}
	if body.System != "sys" || body.MaxTokens != 8192 || len(body.Messages) != 1 || body.Messages[0].Role != "user" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestGenerateAuthenticationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "bad", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_ = p.SetModel("claude-3-5-sonnet-20241022")
	_, err := p.GenerateResponse(context.Background(), "p", "s")
	if !xerrors.HasCode(err, xerrors.CodeBackendAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if msg := xerrors.UserMessage(err); !strings.Contains(msg, "invalid x-api-key") {
		t.Fatalf("reason missing from %q", msg)
	}
}
