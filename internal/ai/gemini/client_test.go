package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/mail-triage/internal/ai"
)

type fakeModels struct {
	mu        sync.Mutex
	calls     []modelCall
	responses []fakeResponse
}

type modelCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCall{model: model, contents: contents, config: config})
	if len(f.responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	return res.resp, res.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	original := sleep
	sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { sleep = original })
}

func TestGeneratorChatBuildsRequest(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse(`{"category":"engineer_related"}`), nil)

	g := newGenerator(models, "", 0, zap.NewNop())

	output, err := g.Chat(context.Background(), []ai.Message{
		{Role: ai.RoleSystem, Content: "You classify staffing email."},
		{Role: ai.RoleUser, Content: "件名: 要員ご紹介"},
	}, ai.Params{Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != `{"category":"engineer_related"}` {
		t.Fatalf("unexpected output %q", output)
	}

	call := models.calls[0]
	if call.model != defaultModel {
		t.Fatalf("expected default model, got %q", call.model)
	}
	if call.config.SystemInstruction == nil || call.config.SystemInstruction.Parts[0].Text != "You classify staffing email." {
		t.Fatalf("system instruction not set: %+v", call.config.SystemInstruction)
	}
	if call.config.MaxOutputTokens != 300 || call.config.Temperature == nil || *call.config.Temperature != float32(0.1) {
		t.Fatalf("unexpected generation config %+v", call.config)
	}
	if len(call.contents) != 1 || call.contents[0].Role != genai.RoleUser {
		t.Fatalf("unexpected contents %+v", call.contents)
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry ok"), nil)

	g := newGenerator(models, "gemini-pro", 2, zap.NewNop())

	output, err := g.Chat(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "message"}}, ai.Params{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetry(t *testing.T) {
	noSleep(t)

	tests := []struct {
		name string
		err  error
	}{
		{name: "long quota delay", err: genai.APIError{Code: http.StatusTooManyRequests, Message: "Please retry in 56s."}},
		{name: "client error", err: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}},
		{name: "plain error", err: errors.New("dial tcp: refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := &fakeModels{}
			models.enqueue(nil, tt.err)

			g := newGenerator(models, "gemini-pro", 3, zap.NewNop())

			if _, err := g.Chat(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "m"}}, ai.Params{}); err == nil {
				t.Fatalf("expected error")
			}
			if len(models.calls) != 1 {
				t.Fatalf("expected a single call, got %d", len(models.calls))
			}
		})
	}
}

func TestRetryDelayHonoursShortQuotaDelay(t *testing.T) {
	t.Parallel()

	delay, retry := retryDelay(genai.APIError{Code: http.StatusTooManyRequests, Message: "Please retry in 4.5s."}, 1)
	if !retry || delay != 4500*time.Millisecond {
		t.Fatalf("expected 4.5s retry, got %v %v", delay, retry)
	}

	delay, retry = retryDelay(genai.APIError{Code: http.StatusServiceUnavailable}, 2)
	if !retry || delay != 4*time.Second {
		t.Fatalf("expected linear backoff, got %v %v", delay, retry)
	}
}

func TestGeneratorEmptyResponse(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(&genai.GenerateContentResponse{}, nil)

	g := newGenerator(models, "gemini-pro", 1, nil)

	if _, err := g.Chat(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "m"}}, ai.Params{}); !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}

	if _, err := g.Chat(context.Background(), []ai.Message{{Role: ai.RoleSystem, Content: "only system"}}, ai.Params{}); err == nil {
		t.Fatalf("expected error without user content")
	}
}
