// Package openaicompat talks to OpenAI and to OpenAI-compatible chat-completion
// APIs (DeepSeek and similar) that authenticate with a bearer key.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/spigell/mail-triage/internal/ai"
)

const defaultModel = "gpt-4o-mini"

type Options struct {
	APIKey string
	// BaseURL is the API root without the version segment, e.g. https://api.deepseek.com.
	// Empty means the hosted OpenAI API.
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	client *openai.Client
	model  string
}

func New(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("api key is required")
	}

	cfg := openai.DefaultConfig(key)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.BaseURL = versionedBaseURL(base)
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	return &Client{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Chat implements ai.ChatClient.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, params ai.Params) (string, error) {
	model := strings.TrimSpace(params.Model)
	if model == "" {
		model = c.model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", describe(err))
	}

	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ai.ErrEmptyResponse
	}

	return content, nil
}

func toChatMessages(messages []ai.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case ai.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case ai.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// describe keeps the HTTP status visible in the error chain.
func describe(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("status %d: %w", reqErr.HTTPStatusCode, err)
	}

	return err
}

func versionedBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}
