package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/mail-triage/internal/ai"
	"github.com/spigell/mail-triage/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-flash"
	baseRetryDelay    = 2 * time.Second
	maxHonouredDelay  = 30 * time.Second
	defaultMaxRetries = 1
)

var (
	sleep        = utils.WaitFor
	retryDelayRe = regexp.MustCompile(`(?i)retry(?:Delay)?["':\s]*(?:in|after)?\s*"?(\d+(?:\.\d+)?)s`)
)

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator sends chat requests through the Gemini API.
type Generator struct {
	models     modelsAPI
	model      string
	maxRetries int
	logger     *zap.Logger
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, maxRetries int, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, model, maxRetries, logger), nil
}

func newGenerator(models modelsAPI, model string, maxRetries int, logger *zap.Logger) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{models: models, model: model, maxRetries: maxRetries, logger: logger}
}

// Chat implements ai.ChatClient. System messages become the system instruction.
func (g *Generator) Chat(ctx context.Context, messages []ai.Message, params ai.Params) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	system, contents := splitMessages(messages)
	if len(contents) == 0 {
		return "", errors.New("prompt must not be empty")
	}

	model := strings.TrimSpace(params.Model)
	if model == "" {
		model = g.model
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: ptr(float32(params.Temperature)),
	}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	for attempt := 1; ; attempt++ {
		resp, err := g.models.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			return responseText(resp)
		}

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt >= g.maxRetries {
			return "", fmt.Errorf("generate content: %w", err)
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		if err := sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

func splitMessages(messages []ai.Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}

		switch m.Role {
		case ai.RoleSystem:
			system = append(system, text)
		case ai.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}})
		}
	}

	return strings.Join(system, "\n\n"), contents
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ai.ErrEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ai.ErrEmptyResponse
	}

	return output, nil
}

// retryDelay decides whether err is temporary and how long to wait before the next attempt.
// Quota errors asking for a long pause are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return 0, false
		}
		apiErr = *apiErrPtr
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		if m := retryDelayRe.FindStringSubmatch(apiErr.Message); m != nil {
			seconds, _ := strconv.ParseFloat(m[1], 64)
			delay := time.Duration(seconds * float64(time.Second))
			if delay > maxHonouredDelay {
				return 0, false
			}
			return delay, true
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
	default:
		return 0, false
	}

	return time.Duration(attempt) * baseRetryDelay, true
}

func ptr[T any](v T) *T {
	return &v
}
