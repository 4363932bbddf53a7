package config

import (
	"strings"
	"testing"
	"time"
)

func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

func validConfig() *Config {
	return &Config{
		AI: AI{
			Services: map[string]ServiceMapping{
				ServiceClassification: {Provider: "local", Fallback: "deepseek"},
				ServiceExtraction:     {Provider: "deepseek", Fallback: "openai"},
				ServiceAttachment:     {Provider: "deepseek"},
			},
			Providers: map[string]Provider{
				"local":    {Kind: "custom_no_auth", BaseURL: "http://localhost:8000"},
				"deepseek": {Kind: "deepseek", BaseURL: "https://api.deepseek.com", APIKeyEnv: "DEEPSEEK_API_KEY"},
				"openai":   {Kind: KindOpenAI, APIKey: "sk-test", ModelExtract: "gpt-4o-mini"},
			},
		},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.AI.Services["extraction"] = ServiceMapping{Provider: "missing"}
	cfg.AI.Services["summary"] = ServiceMapping{Provider: "local"}
	cfg.AI.Providers["gemini"] = Provider{Kind: KindGemini}
	cfg.AI.Providers["broken"] = Provider{Kind: "carrier-pigeon"}
	cfg.AI.Providers["hot"] = Provider{Kind: KindNoAuth, BaseURL: "http://x", Temperature: floatPtr(3), Timeout: time.Second}
	cfg.Classification.ConfidenceThreshold = 1.5
	cfg.Classification.Excerpt = &Excerpt{MaxLength: 1000, HeadLength: 1000}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	for _, want := range []string{
		`provider "missing" is not defined`,
		"ai.services.summary: unknown service type",
		"ai.providers.gemini: api key is required",
		`unsupported kind "carrier-pigeon"`,
		"temperature must be within",
		"timeout must be at least 5s",
		"confidence-threshold",
		"head-length must be smaller",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error:\n%v", want, err)
		}
	}
}

func TestEffectiveKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider Provider
		want     string
	}{
		{provider: Provider{Kind: "DeepSeek"}, want: KindHTTP},
		{provider: Provider{Kind: "custom", RequireAuth: boolPtr(false)}, want: KindNoAuth},
		{provider: Provider{Kind: "custom", RequireAuth: boolPtr(true)}, want: KindHTTP},
		{provider: Provider{Kind: "custom_no_auth"}, want: KindNoAuth},
		{provider: Provider{Kind: "google"}, want: KindGemini},
	}

	for _, tt := range tests {
		if got := tt.provider.EffectiveKind(); got != tt.want {
			t.Fatalf("%q: expected %q, got %q", tt.provider.Kind, tt.want, got)
		}
	}
}

func TestProviderDefaults(t *testing.T) {
	t.Parallel()

	p := Provider{Kind: KindNoAuth, Model: "base", ModelClassify: "small"}

	if p.ModelFor(ServiceClassification) != "small" || p.ModelFor(ServiceExtraction) != "base" {
		t.Fatalf("unexpected model selection")
	}
	if p.MaxTokensFor(ServiceClassification) != 300 || p.MaxTokensFor(ServiceAttachment) != 2000 {
		t.Fatalf("unexpected token defaults")
	}
	if p.EffectiveTemperature() != 0.1 {
		t.Fatalf("unexpected temperature default %v", p.EffectiveTemperature())
	}
	if p.EffectiveTimeout() != 120*time.Second {
		t.Fatalf("no-auth shape must default to 120s, got %v", p.EffectiveTimeout())
	}
	if (Provider{Kind: KindOpenAI}).EffectiveTimeout() != 60*time.Second {
		t.Fatalf("hosted shape must default to 60s")
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	ai := validConfig().AI

	name, provider, ok := ai.Lookup(ServiceExtraction, true)
	if !ok || name != "openai" || provider.Kind != KindOpenAI {
		t.Fatalf("unexpected fallback lookup: %s %+v %v", name, provider, ok)
	}

	if _, _, ok := ai.Lookup(ServiceAttachment, true); ok {
		t.Fatalf("attachment has no fallback configured")
	}
	if _, _, ok := (AI{}).Lookup(ServiceClassification, false); ok {
		t.Fatalf("empty config must not resolve providers")
	}
}

func TestClassificationRulesOverrides(t *testing.T) {
	t.Parallel()

	c := Classification{
		ConfidenceThreshold: 0.85,
		Margin:              7,
		SpamThreshold:       4,
		Weights:             &Weights{Top: 30, High: 6, Medium: 2},
		Excerpt:             &Excerpt{MaxLength: 3000},
	}

	r, err := c.Rules()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Attachments.Threshold != 0.85 || r.Decision.Margin != 7 || r.Spam.Threshold != 4 {
		t.Fatalf("overrides not applied: %+v %+v %+v", r.Attachments.Threshold, r.Decision, r.Spam)
	}
	if r.Keywords.Weights.Top != 30 || r.Excerpt.MaxLength != 3000 || r.Excerpt.HeadLength != 800 {
		t.Fatalf("unexpected weights or excerpt: %+v %+v", r.Keywords.Weights, r.Excerpt)
	}
}
