// Package ai defines the chat-completion contract shared by every provider
// shape and the registry that resolves a provider per service type.
package ai

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/config"
	"github.com/spigell/mail-triage/internal/logger"
)

var (
	// ErrNotConfigured is returned when a service type has no provider for the requested role.
	ErrNotConfigured = errors.New("ai provider is not configured")
	// ErrEmptyResponse is returned by providers that answered without any text.
	ErrEmptyResponse = errors.New("ai provider returned empty response")
)

// Service is the axis along which providers are configured.
type Service string

const (
	Classification Service = config.ServiceClassification
	Extraction     Service = config.ServiceExtraction
	Attachment     Service = config.ServiceAttachment
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatClient sends a chat-completion request and returns the completion text.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params Params) (string, error)
}

// Schema names a structured record type understood by dedicated extraction endpoints.
type Schema string

const (
	SchemaProject  Schema = "project"
	SchemaEngineer Schema = "engineer"
)

// CategoryClassifier is implemented by provider shapes exposing a dedicated
// classification endpoint. It returns the raw category label.
type CategoryClassifier interface {
	ClassifyCategory(ctx context.Context, content, model string) (string, error)
}

// StructuredExtractor is implemented by provider shapes exposing dedicated
// extraction endpoints returning a record object.
type StructuredExtractor interface {
	ExtractStructured(ctx context.Context, schema Schema, content, model string) (map[string]any, error)
}

// Backend is what a provider factory builds: the chat client plus the optional capabilities.
type Backend struct {
	Chat       ChatClient
	Classifier CategoryClassifier
	Extractor  StructuredExtractor
}

// Client is a provider resolved for one service type and role. It is immutable
// once built and safe to share between goroutines when the underlying
// transport is.
type Client struct {
	Provider string
	Kind     string
	Service  Service
	Fallback bool
	Params   Params
	Timeout  time.Duration

	Chat       ChatClient
	Classifier CategoryClassifier
	Extractor  StructuredExtractor
}

// RoleName returns "primary" or "fallback".
func RoleName(fallback bool) string {
	if fallback {
		return "fallback"
	}
	return "primary"
}

func (c *Client) Role() string {
	return RoleName(c.Fallback)
}

// Fields returns structured logging fields describing the client.
func (c *Client) Fields() []zap.Field {
	return logger.CallFields(string(c.Service), c.Role(), c.Provider, c.Params.Model)
}

// Send issues a chat request bounded by the provider timeout.
func (c *Client) Send(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.Chat == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.Chat.Chat(ctx, messages, c.Params)
}

// ClassifyCategory calls the dedicated classification endpoint when the provider has one.
func (c *Client) ClassifyCategory(ctx context.Context, content string) (string, error) {
	if c == nil || c.Classifier == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.Classifier.ClassifyCategory(ctx, content, c.Params.Model)
}

// ExtractStructured calls the dedicated extraction endpoint when the provider has one.
func (c *Client) ExtractStructured(ctx context.Context, schema Schema, content string) (map[string]any, error) {
	if c == nil || c.Extractor == nil {
		return nil, ErrNotConfigured
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.Extractor.ExtractStructured(ctx, schema, content, c.Params.Model)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}
