// Package providers builds the backend for each provider kind.
package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/ai"
	"github.com/spigell/mail-triage/internal/ai/gemini"
	"github.com/spigell/mail-triage/internal/ai/noauth"
	"github.com/spigell/mail-triage/internal/ai/openaicompat"
	"github.com/spigell/mail-triage/internal/config"
	"github.com/spigell/mail-triage/internal/logger"
	"github.com/spigell/mail-triage/internal/secrets"
)

// NewFactory returns an ai.Factory creating provider backends with the given logger.
func NewFactory(log *zap.Logger) ai.Factory {
	return func(ctx context.Context, name string, p config.Provider) (*ai.Backend, error) {
		return New(ctx, name, p, log)
	}
}

// New builds the backend matching the provider kind.
func New(ctx context.Context, name string, p config.Provider, log *zap.Logger) (*ai.Backend, error) {
	log = logger.WithFields(log, logger.CommonFields(name, p.Model)...)

	switch kind := p.EffectiveKind(); kind {
	case config.KindGemini:
		key, err := secrets.Load(p.KeySource(name))
		if err != nil {
			return nil, err
		}
		generator, err := gemini.NewGenerator(ctx, key, p.Model, p.MaxRetries, log)
		if err != nil {
			return nil, err
		}
		return &ai.Backend{Chat: generator}, nil

	case config.KindOpenAI, config.KindHTTP:
		key, err := secrets.Load(p.KeySource(name))
		if err != nil {
			return nil, err
		}
		opts := openaicompat.Options{
			APIKey:  key,
			Model:   p.Model,
			Timeout: p.EffectiveTimeout(),
		}
		if kind == config.KindHTTP {
			opts.BaseURL = p.BaseURL
		}
		client, err := openaicompat.New(opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &ai.Backend{Chat: client}, nil

	case config.KindNoAuth:
		client, err := noauth.New(p.BaseURL, p.Model, p.EffectiveTimeout(), log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		backend := &ai.Backend{Chat: client}
		if p.Endpoints {
			backend.Classifier = client
			backend.Extractor = client
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported ai provider kind: %s", p.Kind)
	}
}
