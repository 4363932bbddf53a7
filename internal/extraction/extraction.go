// Package extraction pulls structured records out of messages and resume
// attachments through the configured AI providers.
package extraction

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/ai"
	"github.com/spigell/mail-triage/internal/email"
	"github.com/spigell/mail-triage/internal/jsonx"
	"github.com/spigell/mail-triage/internal/normalize"
	"github.com/spigell/mail-triage/internal/records"
	"github.com/spigell/mail-triage/internal/utils"
)

const (
	engineerBodyLimit = 1500
	resumeTextLimit   = 4000

	projectSystem  = "あなたは案件情報抽出の専門家です。必ずJSONのみを返してください。"
	engineerSystem = "あなたは技術者情報抽出の専門家です。指定された値の制約を厳密に守り、必ずJSONのみを返してください。"
)

var errNoJSON = errors.New("no json object in response")

//go:embed prompts/*.md
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.md"))

// Result is the record-or-none outcome of an extraction. Reason is set when
// no record was produced.
type Result struct {
	Project      *records.ProjectRecord
	Engineer     *records.EngineerRecord
	Provider     string
	FallbackUsed bool
	Reason       string
}

// OK reports whether a record was produced.
func (r Result) OK() bool {
	return r.Project != nil || r.Engineer != nil
}

type Option func(*Service)

// WithMaxLogLength bounds prompt and response previews in debug logs.
func WithMaxLogLength(n int) Option {
	return func(s *Service) { s.maxLogLength = n }
}

// Service is safe for concurrent use.
type Service struct {
	resolver     ai.Resolver
	normalizer   *normalize.Normalizer
	builder      *records.Builder
	logger       *zap.Logger
	maxLogLength int
}

func New(resolver ai.Resolver, n *normalize.Normalizer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n == nil {
		n = normalize.New(logger)
	}

	s := &Service{
		resolver:   resolver,
		normalizer: n,
		builder:    records.NewBuilder(n, logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type promptData struct {
	Subject  string
	Body     string
	Fields   string
	Keys     string
	Today    string
	Filename string
}

// job is one extraction request against a service type.
type job struct {
	service  ai.Service
	schema   ai.Schema
	template string
	system   string
	data     promptData
	build    func(raw map[string]any, r *Result) error
}

// ExtractProject extracts a job order from the message excerpt.
func (s *Service) ExtractProject(ctx context.Context, content *email.Content, excerpt string) Result {
	return s.run(ctx, job{
		service:  ai.Extraction,
		schema:   ai.SchemaProject,
		template: "project.md",
		system:   projectSystem,
		data: promptData{
			Subject: content.Subject,
			Body:    excerpt,
			Fields:  records.Render(records.ProjectFields),
			Keys:    keys(records.ProjectFields),
		},
		build: func(raw map[string]any, r *Result) error {
			p, err := s.builder.Project(raw)
			r.Project = p
			return err
		},
	})
}

// ExtractEngineer extracts a candidate profile from the message excerpt.
func (s *Service) ExtractEngineer(ctx context.Context, content *email.Content, excerpt string) Result {
	return s.run(ctx, job{
		service:  ai.Extraction,
		schema:   ai.SchemaEngineer,
		template: "engineer.md",
		system:   engineerSystem,
		data: promptData{
			Subject: content.Subject,
			Body:    utils.HeadRunes(excerpt, engineerBodyLimit),
			Fields:  records.Render(records.EngineerFields),
			Keys:    keys(records.EngineerFields),
		},
		build: func(raw map[string]any, r *Result) error {
			e, err := s.builder.Engineer(raw)
			r.Engineer = e
			return err
		},
	})
}

// ExtractResume extracts a candidate profile from attachment text produced by
// an external document reader.
func (s *Service) ExtractResume(ctx context.Context, text, filename string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Reason: "attachment has no text"}
	}

	return s.run(ctx, job{
		service:  ai.Attachment,
		schema:   ai.SchemaEngineer,
		template: "resume.md",
		system:   engineerSystem,
		data: promptData{
			Body:     utils.HeadRunes(text, resumeTextLimit),
			Fields:   records.Render(records.EngineerFields),
			Keys:     keys(records.EngineerFields),
			Filename: filename,
		},
		build: func(raw map[string]any, r *Result) error {
			e, err := s.builder.Engineer(raw)
			if e != nil && e.SourceFilename == nil && filename != "" {
				e.SourceFilename = &filename
			}
			r.Engineer = e
			return err
		},
	})
}

// run tries the primary provider and then the fallback provider exactly once.
func (s *Service) run(ctx context.Context, j job) Result {
	if s.resolver == nil {
		return Result{Reason: fmt.Sprintf("%s: %s", j.service, ai.ErrNotConfigured)}
	}

	j.data.Today = s.normalizer.Today()
	prompt, err := render(j.template, j.data)
	if err != nil {
		return Result{Reason: err.Error()}
	}

	reasons := make([]string, 0, 2)
	for _, fallback := range []bool{false, true} {
		role := ai.RoleName(fallback)

		client, err := s.resolver.Client(ctx, j.service, fallback)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", role, err))
			if !errors.Is(err, ai.ErrNotConfigured) {
				s.logger.Warn("extraction client unavailable",
					zap.String("ai_service", string(j.service)),
					zap.String("ai_role", role),
					zap.Error(err),
				)
			}
			continue
		}

		raw, err := s.call(ctx, client, j, prompt)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s %s: %v", role, client.Provider, err))
			s.logger.Warn("AI extraction failed",
				append(client.Fields(), zap.String("schema", string(j.schema)), zap.Error(err))...)
			continue
		}

		var result Result
		if err := j.build(raw, &result); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s %s: %v", role, client.Provider, err))
			s.logger.Warn("extracted record rejected",
				append(client.Fields(), zap.String("schema", string(j.schema)), zap.Error(err))...)
			continue
		}

		result.Provider = client.Provider
		result.FallbackUsed = fallback

		s.logger.Info("record extracted",
			append(client.Fields(),
				zap.String("schema", string(j.schema)),
				zap.Bool("fallback_used", fallback),
			)...)

		return result
	}

	return Result{Reason: strings.Join(reasons, "; ")}
}

func (s *Service) call(ctx context.Context, client *ai.Client, j job, prompt string) (map[string]any, error) {
	if client.Extractor != nil {
		content := j.data.Body
		if j.data.Subject != "" {
			content = j.data.Subject + "\n" + content
		}
		return client.ExtractStructured(ctx, j.schema, content)
	}

	s.logger.Debug("extraction prompt",
		append(client.Fields(), zap.String("prompt", utils.TruncateForLog(prompt, s.maxLogLength)))...)

	answer, err := client.Send(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: j.system},
		{Role: ai.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("extraction response",
		append(client.Fields(), zap.String("response", utils.TruncateForLog(answer, s.maxLogLength)))...)

	raw, ok := jsonx.Extract(answer)
	if !ok {
		return nil, errNoJSON
	}
	return raw, nil
}

func keys(fields []records.FieldSpec) string {
	return strings.Join(records.Names(fields), ", ")
}

func render(name string, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
