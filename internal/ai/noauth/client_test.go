package noauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/ai"
)

func TestChat(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("no-auth client must not send credentials, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"engineer_related"}}]}`)
	}))
	defer srv.Close()

	client, err := New(srv.URL+"/", "default", time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := client.Chat(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "本文"}}, ai.Params{Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "engineer_related" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, ok := got["model"]; ok {
		t.Fatalf("placeholder model must be omitted, got %v", got["model"])
	}
	if got["max_tokens"].(float64) != 300 {
		t.Fatalf("unexpected request %v", got)
	}
}

func TestDedicatedEndpoints(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path

		var req endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}

		switch r.URL.Path {
		case "/classify":
			_, _ = io.WriteString(w, `{"category":"project_related"}`)
		case "/extract_case":
			if req.Model != "qwen" {
				t.Errorf("expected explicit model, got %q", req.Model)
			}
			_, _ = io.WriteString(w, `{"title":"在庫管理","skills":["Java"]}`)
		case "/extract_cv":
			_, _ = io.WriteString(w, `"結果: {\"name\": \"山田\"}"`)
		}
	}))
	defer srv.Close()

	client, err := New(srv.URL, "", time.Second, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	category, err := client.ClassifyCategory(context.Background(), "本文", "")
	if err != nil || category != "project_related" {
		t.Fatalf("unexpected classify result %q %v", category, err)
	}

	project, err := client.ExtractStructured(context.Background(), ai.SchemaProject, "本文", "qwen")
	if err != nil || project["title"] != "在庫管理" {
		t.Fatalf("unexpected project %v %v", project, err)
	}

	engineer, err := client.ExtractStructured(context.Background(), ai.SchemaEngineer, "本文", "")
	if err != nil || engineer["name"] != "山田" {
		t.Fatalf("unexpected engineer %v %v", engineer, err)
	}

	for _, want := range []string{"/classify", "/extract_case", "/extract_cv"} {
		if got := <-paths; got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := New(srv.URL, "", time.Second, nil)

	_, err := client.Chat(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "x"}}, ai.Params{})
	if err == nil || !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected bad status error, got %v", err)
	}

	if _, err := New(" ", "", time.Second, nil); err == nil {
		t.Fatalf("expected error without base url")
	}
}
