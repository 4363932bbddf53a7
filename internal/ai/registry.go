package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/mail-triage/internal/config"
)

// Factory builds the backend for a named provider.
type Factory func(ctx context.Context, name string, provider config.Provider) (*Backend, error)

// Resolver hands out the client for a service type and role.
type Resolver interface {
	Client(ctx context.Context, service Service, fallback bool) (*Client, error)
}

// Registry memoizes one client per (service type, role). It is built once by
// the entry point and passed to the components that need providers.
type Registry struct {
	cfg     config.AI
	factory Factory
	logger  *zap.Logger

	group   singleflight.Group
	clients sync.Map
}

func NewRegistry(cfg config.AI, factory Factory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
	}
}

// Configured reports whether the service type has a provider for the role.
func (r *Registry) Configured(service Service, fallback bool) bool {
	if r == nil {
		return false
	}
	_, _, ok := r.cfg.Lookup(string(service), fallback)
	return ok
}

// Client returns the cached client, creating it on first use. It returns
// ErrNotConfigured when the role has no provider.
func (r *Registry) Client(ctx context.Context, service Service, fallback bool) (*Client, error) {
	if r == nil {
		return nil, ErrNotConfigured
	}

	key := cacheKey(service, fallback)
	if cached, ok := r.clients.Load(key); ok {
		return cached.(*Client), nil
	}

	name, provider, ok := r.cfg.Lookup(string(service), fallback)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", service, RoleName(fallback), ErrNotConfigured)
	}

	created, err, _ := r.group.Do(key, func() (interface{}, error) {
		if cached, ok := r.clients.Load(key); ok {
			return cached, nil
		}

		client, err := r.build(ctx, key, service, fallback, name, provider)
		if err != nil {
			return nil, err
		}

		r.clients.Store(key, client)
		return client, nil
	})
	if err != nil {
		return nil, err
	}

	return created.(*Client), nil
}

func (r *Registry) build(ctx context.Context, key string, service Service, fallback bool, name string, provider config.Provider) (*Client, error) {
	if r.factory == nil {
		return nil, fmt.Errorf("%s: no provider factory", key)
	}

	backend, err := r.factory(ctx, name, provider)
	if err != nil {
		return nil, fmt.Errorf("create %s client %q: %w", key, name, err)
	}

	client := &Client{
		Provider: name,
		Kind:     provider.EffectiveKind(),
		Service:  service,
		Fallback: fallback,
		Params: Params{
			Model:       provider.ModelFor(string(service)),
			Temperature: provider.EffectiveTemperature(),
			MaxTokens:   provider.MaxTokensFor(string(service)),
		},
		Timeout: provider.EffectiveTimeout(),
	}

	cb := r.newBreaker(key)
	client.Chat = &breakerChat{cb: cb, next: backend.Chat}
	if backend.Classifier != nil {
		client.Classifier = &breakerClassifier{cb: cb, next: backend.Classifier}
	}
	if backend.Extractor != nil {
		client.Extractor = &breakerExtractor{cb: cb, next: backend.Extractor}
	}

	r.logger.Debug("ai client created", client.Fields()...)

	return client, nil
}

func (r *Registry) newBreaker(key string) *gobreaker.CircuitBreaker {
	maxFailures := r.cfg.Breaker.EffectiveMaxFailures()

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     r.cfg.Breaker.EffectiveOpenTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("ai circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func cacheKey(service Service, fallback bool) string {
	return string(service) + "_" + RoleName(fallback)
}

type breakerChat struct {
	cb   *gobreaker.CircuitBreaker
	next ChatClient
}

func (b *breakerChat) Chat(ctx context.Context, messages []Message, params Params) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Chat(ctx, messages, params)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

type breakerClassifier struct {
	cb   *gobreaker.CircuitBreaker
	next CategoryClassifier
}

func (b *breakerClassifier) ClassifyCategory(ctx context.Context, content, model string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.ClassifyCategory(ctx, content, model)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

type breakerExtractor struct {
	cb   *gobreaker.CircuitBreaker
	next StructuredExtractor
}

func (b *breakerExtractor) ExtractStructured(ctx context.Context, schema Schema, content, model string) (map[string]any, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.ExtractStructured(ctx, schema, content, model)
	})
	if err != nil {
		return nil, err
	}
	record, _ := out.(map[string]any)
	return record, nil
}
