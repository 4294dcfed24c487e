package home

import (
	"testing"

	"Sailor-Bot/internal/llm"
	"Sailor-Bot/internal/state"
)

var catalog = llm.Catalog{
	{Key: "gpt-x", Name: "GPT X", Provider: "openai", ProviderName: "OpenAI", MaxTokens: 4096},
	{Key: "claude-y", Name: "Claude Y", Provider: "anthropic", ProviderName: "Anthropic", MaxTokens: 8192},
}

func TestRenderMarksCurrentSelection(t *testing.T) {
	sel := Render(catalog, &state.UserIdentity{UserID: "u1", Provider: "anthropic", Model: "claude-y"})
	if len(sel.Options) != 2 {
		t.Fatalf("no placeholder expected when a selection exists, got %+v", sel.Options)
	}
	opt, ok := sel.InitialOption()
	if !ok || opt.Value != "claude-y anthropic" || opt.Label != "Claude Y (Anthropic)" {
		t.Fatalf("unexpected initial option %+v ok=%v", opt, ok)
	}
}

func TestRenderAppendsPlaceholder(t *testing.T) {
	sel := Render(catalog, nil)
	if len(sel.Options) != 3 {
		t.Fatalf("expected placeholder to be appended, got %+v", sel.Options)
	}
	opt, ok := sel.InitialOption()
	if !ok || opt.Label != PlaceholderLabel || opt.Value != PlaceholderValue {
		t.Fatalf("placeholder should be initial, got %+v", opt)
	}
	if sel.Options[0].Value != "gpt-x openai" {
		t.Fatalf("catalog order not preserved: %+v", sel.Options)
	}
}

func TestRenderStaleSelection(t *testing.T) {
	sel := Render(catalog, &state.UserIdentity{UserID: "u1", Provider: "vertexai", Model: "gemini-1.0"})
	if _, ok := sel.InitialOption(); ok {
		t.Fatalf("stale selection must not pre-select anything: %+v", sel)
	}
	if len(sel.Options) != 2 {
		t.Fatalf("unexpected options %+v", sel.Options)
	}
}

func TestRenderPrefersExactMatch(t *testing.T) {
	c := llm.Catalog{
		{Key: "gpt-4", Name: "GPT-4", Provider: "openai", ProviderName: "OpenAI"},
		{Key: "gpt-4o", Name: "GPT-4o", Provider: "openai", ProviderName: "OpenAI"},
	}
	sel := Render(c, &state.UserIdentity{Provider: "openai", Model: "gpt-4o"})
	if opt, _ := sel.InitialOption(); opt.Value != "gpt-4o openai" {
		t.Fatalf("exact match should win over prefix, got %+v", opt)
	}

	sel = Render(c, &state.UserIdentity{Provider: "genai", Model: "gpt-4"})
	if opt, _ := sel.InitialOption(); opt.Value != "gpt-4 openai" {
		t.Fatalf("prefix match expected, got %+v", opt)
	}
}

func TestRenderEmptyCatalog(t *testing.T) {
	sel := Render(nil, nil)
	if len(sel.Options) != 1 || sel.Initial != 0 {
		t.Fatalf("unexpected selection %+v", sel)
	}
}

func TestParseValue(t *testing.T) {
	model, provider, ok := ParseValue("claude-3-5-sonnet-20241022 anthropic")
	if !ok || model != "claude-3-5-sonnet-20241022" || provider != "anthropic" {
		t.Fatalf("unexpected parse %q %q %v", model, provider, ok)
	}
	for _, bad := range []string{"", "null", "lonely", "trailing "} {
		if _, _, ok := ParseValue(bad); ok {
			t.Fatalf("ParseValue(%q) should fail", bad)
		}
	}
}
