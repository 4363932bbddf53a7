// Package noauth is the chat-completion shape for self-hosted models that sit
// behind a plain HTTP endpoint without authentication.
package noauth

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/ai"
	"github.com/spigell/mail-triage/internal/jsonx"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	userAgent       = "spigell/mail-triage"
	defaultModel    = "default"
	maxErrorBody    = 512
)

type Client struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	UserAgent  string
	logger     *zap.Logger
}

func New(baseURL, model string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}

	return &Client{
		BaseURL:    baseURL,
		Model:      model,
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  userAgent,
		logger:     logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Chat implements ai.ChatClient against {base}/v1/chat/completions.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, params ai.Params) (string, error) {
	req := chatRequest{
		Model:       c.model(params.Model),
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
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

type endpointRequest struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// ClassifyCategory implements ai.CategoryClassifier using POST {base}/classify.
func (c *Client) ClassifyCategory(ctx context.Context, content, model string) (string, error) {
	var raw json.RawMessage
	if err := c.postJSON(ctx, "/classify", endpointRequest{Content: content, Model: c.model(model)}, &raw); err != nil {
		return "", err
	}

	var payload struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Category != "" {
		return payload.Category, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil
	}

	return "", fmt.Errorf("classify endpoint: unexpected response %s", truncate(raw))
}

// ExtractStructured implements ai.StructuredExtractor using POST {base}/extract_case
// for projects and POST {base}/extract_cv for engineers.
func (c *Client) ExtractStructured(ctx context.Context, schema ai.Schema, content, model string) (map[string]any, error) {
	path := "/extract_cv"
	if schema == ai.SchemaProject {
		path = "/extract_case"
	}

	var raw json.RawMessage
	if err := c.postJSON(ctx, path, endpointRequest{Content: content, Model: c.model(model)}, &raw); err != nil {
		return nil, err
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err == nil && record != nil {
		return record, nil
	}

	// Some servers return the model output verbatim as a JSON string.
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if record, ok := jsonx.Extract(text); ok {
			return record, nil
		}
	}

	return nil, fmt.Errorf("%s: response is not a json object: %s", path, truncate(raw))
}

// model drops the placeholder name so the server picks its own default.
func (c *Client) model(requested string) string {
	model := strings.TrimSpace(requested)
	if model == "" {
		model = c.Model
	}
	if strings.EqualFold(model, defaultModel) {
		return ""
	}
	return model
}

func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req = c.setHeaders(req)

	resp, err := c.request(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s: %s", resp.Status, truncate(data))
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("User-Agent", c.UserAgent)

	return req
}

func truncate(data []byte) string {
	if len(data) > maxErrorBody {
		return string(data[:maxErrorBody]) + "..."
	}
	return string(data)
}
