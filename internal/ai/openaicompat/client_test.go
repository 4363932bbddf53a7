package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spigell/mail-triage/internal/ai"
)

func TestChatAgainstCompatibleServer(t *testing.T) {
	t.Parallel()

	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" {\"title\":\"在庫管理\"} "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client, err := New(Options{APIKey: "secret", BaseURL: srv.URL, Model: "deepseek-chat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := client.Chat(context.Background(), []ai.Message{
		{Role: ai.RoleSystem, Content: "extract"},
		{Role: ai.RoleUser, Content: "本文"},
	}, ai.Params{Temperature: 0.1, MaxTokens: 2000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out != `{"title":"在庫管理"}` {
		t.Fatalf("unexpected output %q", out)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if path != "/v1/chat/completions" {
		t.Fatalf("unexpected path %q", path)
	}
	if got.Model != "deepseek-chat" || got.MaxTokens != 2000 || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestChatSurfacesHTTPStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	client, err := New(Options{APIKey: "secret", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Chat(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "x"}}, ai.Params{})
	if err == nil || !strings.Contains(err.Error(), "status 503") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{BaseURL: "https://api.deepseek.com"}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if got := versionedBaseURL("https://api.deepseek.com/"); got != "https://api.deepseek.com/v1" {
		t.Fatalf("unexpected base url %q", got)
	}
}
