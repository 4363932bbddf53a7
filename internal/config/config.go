// Package config describes the application configuration as decoded by viper
// and validates it before any message is processed.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spigell/mail-triage/internal/rules"
	"github.com/spigell/mail-triage/internal/secrets"
)

// Service types along which AI providers are selected.
const (
	ServiceClassification = "classification"
	ServiceExtraction     = "extraction"
	ServiceAttachment     = "attachment"
)

// Provider kinds.
const (
	KindGemini = "gemini"
	KindOpenAI = "openai"
	KindHTTP   = "http"
	KindNoAuth = "noauth"
)

const (
	defaultTemperature      = 0.1
	defaultMaxTokens        = 300
	defaultExtractMaxTokens = 2000
	defaultTimeout          = 60 * time.Second
	defaultNoAuthTimeout    = 120 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerTimeout   = 30 * time.Second
)

var kindAliases = map[string]string{
	KindGemini:       KindGemini,
	"google":         KindGemini,
	KindOpenAI:       KindOpenAI,
	KindHTTP:         KindHTTP,
	"deepseek":       KindHTTP,
	"custom":         KindHTTP,
	KindNoAuth:       KindNoAuth,
	"custom_no_auth": KindNoAuth,
}

type Config struct {
	AI             AI             `mapstructure:"ai"`
	Classification Classification `mapstructure:"classification"`
}

type AI struct {
	Services     map[string]ServiceMapping `mapstructure:"services"`
	Providers    map[string]Provider       `mapstructure:"providers"`
	Breaker      Breaker                   `mapstructure:"breaker"`
	MaxLogLength int                       `mapstructure:"max-log-length"`
}

// ServiceMapping names the primary and the optional fallback provider of a service type.
type ServiceMapping struct {
	Provider string `mapstructure:"provider"`
	Fallback string `mapstructure:"fallback"`
}

type Provider struct {
	Kind             string        `mapstructure:"kind"`
	APIKey           string        `mapstructure:"api-key" json:"-"`
	APIKeyFile       string        `mapstructure:"api-key-file"`
	APIKeyEnv        string        `mapstructure:"api-key-env"`
	BaseURL          string        `mapstructure:"base-url"`
	RequireAuth      *bool         `mapstructure:"require-auth"`
	Model            string        `mapstructure:"model"`
	ModelClassify    string        `mapstructure:"model-classify"`
	ModelExtract     string        `mapstructure:"model-extract"`
	Temperature      *float64      `mapstructure:"temperature"`
	MaxTokens        int           `mapstructure:"max-tokens"`
	ExtractMaxTokens int           `mapstructure:"extract-max-tokens"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max-retries"`
	// Endpoints switches the no-auth shape to its dedicated /classify,
	// /extract_case and /extract_cv endpoints.
	Endpoints bool `mapstructure:"endpoints"`
}

type Breaker struct {
	MaxFailures uint32        `mapstructure:"max-failures"`
	OpenTimeout time.Duration `mapstructure:"open-timeout"`
}

// Classification overrides values of the rule table. Zero values keep the rule table's value.
type Classification struct {
	RulesFile           string   `mapstructure:"rules-file"`
	ConfidenceThreshold float64  `mapstructure:"confidence-threshold"`
	Margin              float64  `mapstructure:"margin"`
	Floor               float64  `mapstructure:"floor"`
	FallbackFloor       float64  `mapstructure:"fallback-floor"`
	SpamThreshold       int      `mapstructure:"spam-threshold"`
	Weights             *Weights `mapstructure:"weights"`
	Excerpt             *Excerpt `mapstructure:"excerpt"`
}

type Weights struct {
	Top    float64 `mapstructure:"top"`
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
}

type Excerpt struct {
	MaxLength  int `mapstructure:"max-length"`
	HeadLength int `mapstructure:"head-length"`
	TailLength int `mapstructure:"tail-length"`
}

// NormalizeKind maps provider kinds and their legacy names onto the four supported kinds.
// Unknown kinds are returned lowercased and fail validation.
func NormalizeKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if known, ok := kindAliases[kind]; ok {
		return known
	}
	return kind
}

// EffectiveKind resolves the kind, turning an http provider with authentication
// disabled into the no-auth shape.
func (p Provider) EffectiveKind() string {
	kind := NormalizeKind(p.Kind)
	if kind == KindHTTP && p.RequireAuth != nil && !*p.RequireAuth {
		return KindNoAuth
	}
	return kind
}

// KeySource describes where the provider API key is read from.
func (p Provider) KeySource(name string) secrets.Source {
	return secrets.Source{
		Name:  fmt.Sprintf("%s api key", name),
		Value: p.APIKey,
		Env:   p.APIKeyEnv,
		File:  p.APIKeyFile,
	}
}

// ModelFor returns the model used for the given service type.
func (p Provider) ModelFor(service string) string {
	model := p.ModelExtract
	if service == ServiceClassification {
		model = p.ModelClassify
	}
	if strings.TrimSpace(model) == "" {
		model = p.Model
	}
	return strings.TrimSpace(model)
}

// MaxTokensFor returns the output token budget for the given service type.
func (p Provider) MaxTokensFor(service string) int {
	if service == ServiceClassification {
		if p.MaxTokens > 0 {
			return p.MaxTokens
		}
		return defaultMaxTokens
	}
	if p.ExtractMaxTokens > 0 {
		return p.ExtractMaxTokens
	}
	return defaultExtractMaxTokens
}

func (p Provider) EffectiveTemperature() float64 {
	if p.Temperature == nil {
		return defaultTemperature
	}
	return *p.Temperature
}

func (p Provider) EffectiveTimeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	if p.EffectiveKind() == KindNoAuth {
		return defaultNoAuthTimeout
	}
	return defaultTimeout
}

func (b Breaker) EffectiveMaxFailures() uint32 {
	if b.MaxFailures == 0 {
		return defaultBreakerFailures
	}
	return b.MaxFailures
}

func (b Breaker) EffectiveOpenTimeout() time.Duration {
	if b.OpenTimeout <= 0 {
		return defaultBreakerTimeout
	}
	return b.OpenTimeout
}

// Lookup returns the provider configured for a service type. ok is false when
// the service or the requested role has no provider.
func (a AI) Lookup(service string, fallback bool) (name string, provider Provider, ok bool) {
	mapping, found := a.Services[service]
	if !found {
		return "", Provider{}, false
	}

	name = mapping.Provider
	if fallback {
		name = mapping.Fallback
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Provider{}, false
	}

	provider, ok = a.Providers[name]
	return name, provider, ok
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	var errs []error
	errs = append(errs, c.AI.validate()...)
	errs = append(errs, c.Classification.validate()...)

	return errors.Join(errs...)
}

func (a AI) validate() []error {
	var errs []error

	for _, service := range sortedKeys(a.Services) {
		mapping := a.Services[service]
		switch service {
		case ServiceClassification, ServiceExtraction, ServiceAttachment:
		default:
			errs = append(errs, fmt.Errorf("ai.services.%s: unknown service type", service))
			continue
		}

		if strings.TrimSpace(mapping.Provider) == "" {
			errs = append(errs, fmt.Errorf("ai.services.%s: primary provider is required", service))
		}

		for _, name := range []string{mapping.Provider, mapping.Fallback} {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := a.Providers[name]; !ok {
				errs = append(errs, fmt.Errorf("ai.services.%s: provider %q is not defined under ai.providers", service, name))
			}
		}
	}

	for _, name := range sortedKeys(a.Providers) {
		errs = append(errs, a.Providers[name].validate(name)...)
	}

	return errs
}

func (p Provider) validate(name string) []error {
	var errs []error
	prefix := "ai.providers." + name

	switch p.EffectiveKind() {
	case KindGemini, KindOpenAI:
		if !p.KeySource(name).Configured() {
			errs = append(errs, fmt.Errorf("%s: api key is required (api-key, api-key-env or api-key-file)", prefix))
		}
	case KindHTTP:
		if strings.TrimSpace(p.BaseURL) == "" {
			errs = append(errs, fmt.Errorf("%s: base-url is required", prefix))
		}
		if !p.KeySource(name).Configured() {
			errs = append(errs, fmt.Errorf("%s: api key is required unless require-auth is false", prefix))
		}
	case KindNoAuth:
		if strings.TrimSpace(p.BaseURL) == "" {
			errs = append(errs, fmt.Errorf("%s: base-url is required", prefix))
		}
	case "":
		errs = append(errs, fmt.Errorf("%s: kind is required", prefix))
	default:
		errs = append(errs, fmt.Errorf("%s: unsupported kind %q", prefix, p.Kind))
	}

	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		errs = append(errs, fmt.Errorf("%s: temperature must be within [0, 2]", prefix))
	}
	if p.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s: timeout must not be negative", prefix))
	}
	if p.Timeout > 0 && p.Timeout < 5*time.Second {
		errs = append(errs, fmt.Errorf("%s: timeout must be at least 5s", prefix))
	}
	if p.MaxTokens < 0 || p.ExtractMaxTokens < 0 {
		errs = append(errs, fmt.Errorf("%s: token limits must not be negative", prefix))
	}

	return errs
}

func (c Classification) validate() []error {
	var errs []error

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, errors.New("classification.confidence-threshold must be within [0, 1]"))
	}
	if c.Margin < 0 || c.Floor < 0 || c.FallbackFloor < 0 {
		errs = append(errs, errors.New("classification margin and floors must not be negative"))
	}
	if c.SpamThreshold < 0 {
		errs = append(errs, errors.New("classification.spam-threshold must be at least 1"))
	}
	if w := c.Weights; w != nil && (w.Top <= 0 || w.High <= 0 || w.Medium <= 0) {
		errs = append(errs, errors.New("classification.weights must all be positive"))
	}
	if e := c.Excerpt; e != nil {
		if e.MaxLength > 0 && e.MaxLength < 500 {
			errs = append(errs, errors.New("classification.excerpt.max-length must be at least 500"))
		}
		if e.MaxLength > 0 && e.HeadLength >= e.MaxLength {
			errs = append(errs, errors.New("classification.excerpt.head-length must be smaller than max-length"))
		}
	}

	return errs
}

// Rules loads the rule table and applies the threshold overrides on top of it.
func (c Classification) Rules() (*rules.Rules, error) {
	r, err := rules.Load(c.RulesFile)
	if err != nil {
		return nil, err
	}

	if c.ConfidenceThreshold > 0 {
		r.Attachments.Threshold = c.ConfidenceThreshold
	}
	if c.Margin > 0 {
		r.Decision.Margin = c.Margin
	}
	if c.Floor > 0 {
		r.Decision.Floor = c.Floor
	}
	if c.FallbackFloor > 0 {
		r.Decision.FallbackFloor = c.FallbackFloor
	}
	if c.SpamThreshold > 0 {
		r.Spam.Threshold = c.SpamThreshold
	}
	if c.Weights != nil {
		r.Keywords.Weights = rules.Weights{Top: c.Weights.Top, High: c.Weights.High, Medium: c.Weights.Medium}
	}
	if e := c.Excerpt; e != nil {
		if e.MaxLength > 0 {
			r.Excerpt.MaxLength = e.MaxLength
		}
		if e.HeadLength > 0 {
			r.Excerpt.HeadLength = e.HeadLength
		}
		if e.TailLength > 0 {
			r.Excerpt.TailLength = e.TailLength
		}
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("classification rules: %w", err)
	}

	return r, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
