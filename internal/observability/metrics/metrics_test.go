package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	return string(body)
}

func TestRenderSailorMetrics(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	ObserveGeneration("openai", "gpt-4", "ok", 1200*time.Millisecond)
	ObserveGeneration("openai", "gpt-4", "ok", 300*time.Millisecond)
	AddEstimatedTokens("openai", DirectionPrompt, 12)
	AddEstimatedTokens("openai", DirectionPrompt, 0)
	IncSelectionFallback("not_found")
	ObserveIndexingJob("start", "ok")

	out := scrape(t)
	for _, want := range []string{
		`sailor_generations_total{provider="openai",model="gpt-4",outcome="ok"} 2`,
		`sailor_generation_duration_seconds_bucket{provider="openai",le="0.5"} 1`,
		`sailor_generation_duration_seconds_bucket{provider="openai",le="+Inf"} 2`,
		`sailor_generation_estimated_tokens_total{provider="openai",direction="prompt"} 12`,
		`sailor_selection_fallbacks_total{reason="not_found"} 1`,
		`sailor_indexing_jobs_total{operation="start",outcome="ok"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestObserveHTTPRequest(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	ObserveHTTPRequest("/healthz", "GET", 200, 20*time.Millisecond)
	ObserveHTTPRequest("/healthz", "GET", 503, 20*time.Millisecond)

	out := scrape(t)
	for _, want := range []string{
		`sailor_http_requests_total{handler="/healthz",method="GET",code="200"} 1`,
		`sailor_http_request_errors_total{handler="/healthz",method="GET"} 1`,
		`sailor_http_request_duration_seconds_count{handler="/healthz",method="GET"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestEscapeLabelValues(t *testing.T) {
	if got := escape("a\"b\\c\nd"); got != `a\"b\\cd` {
		t.Fatalf("unexpected escape result %q", got)
	}
}
