package classifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/ai"
	"github.com/spigell/mail-triage/internal/email"
	"github.com/spigell/mail-triage/internal/logger"
	"github.com/spigell/mail-triage/internal/rules"
)

// Pipeline runs the stages in a fixed order: spam, structure, attachment,
// keyword, ai, fallback. It holds no per-call state and is safe for
// concurrent use.
type Pipeline struct {
	rules     *rules.Rules
	excerpter *Excerpter
	stages    []Stage
	logger    *zap.Logger
}

type Option func(*options)

type options struct {
	maxLogLength int
}

// WithMaxLogLength bounds prompt and response previews in debug logs.
func WithMaxLogLength(n int) Option {
	return func(o *options) { o.maxLogLength = n }
}

// configuredChecker is implemented by resolvers that know their configuration upfront.
type configuredChecker interface {
	Configured(service ai.Service, fallback bool) bool
}

// New builds the pipeline. A nil resolver, or one without any classification
// provider, disables the AI stage.
func New(r *rules.Rules, resolver ai.Resolver, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	aiStep := &aiStage{
		resolver:          resolver,
		logger:            logger,
		defaultConfidence: r.Decision.AIDefaultConfidence,
		maxLogLength:      o.maxLogLength,
	}

	stages := []Stage{
		&spamStage{},
		&structureStage{},
		&attachmentStage{threshold: r.Attachments.Threshold},
		&keywordStage{decision: r.Decision, boost: r.Sender.RecruitingBoost},
		aiStep,
		&fallbackStage{decision: r.Decision, informational: r.Informational, ai: aiStep},
	}

	switch checker, ok := resolver.(configuredChecker); {
	case resolver == nil:
		DisableByName(stages, stageAI, "no resolver")
	case ok && !checker.Configured(ai.Classification, false) && !checker.Configured(ai.Classification, true):
		DisableByName(stages, stageAI, "no classification provider configured")
	}

	return &Pipeline{
		rules:     r,
		excerpter: NewExcerpter(r.Excerpt),
		stages:    stages,
		logger:    logger,
	}
}

// Stages exposes the stage list for status reporting.
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Excerpt returns the bounded excerpt of the message body.
func (p *Pipeline) Excerpt(content *email.Content) string {
	return p.excerpter.Extract(content.PlainText())
}

// Classify always returns a verdict; provider failures fall through to the
// deterministic stages.
func (p *Pipeline) Classify(ctx context.Context, content *email.Content) Verdict {
	if content == nil {
		return Verdict{Category: Unclassified, Stage: stageFallback, Reason: "empty message"}
	}

	s := p.signals(content)

	for _, stage := range p.stages {
		if !stage.IsEnabled() {
			continue
		}

		v, decided := stage.Evaluate(ctx, s)

		fields := append(logger.MessageFields(content.MessageID, content.Subject),
			zap.String("stage", stage.Name()),
			zap.Bool("decided", decided),
		)
		if decided {
			fields = append(fields,
				zap.String("category", string(v.Category)),
				zap.Float64("confidence", v.Confidence),
				zap.String("reason", v.Reason),
			)
		}
		p.logger.Info("classification stage", fields...)

		if decided {
			v.Stage = stage.Name()
			return v
		}
	}

	return Verdict{Category: Unclassified, Stage: stageFallback, Reason: "no stage decided"}
}

func (p *Pipeline) signals(content *email.Content) *Signals {
	body := content.PlainText()
	return &Signals{
		Content: content,
		Text:    content.Subject + "\n" + body,
		Excerpt: p.excerpter.Extract(body),
		Sender:  AnalyzeSender(p.rules.Sender, content.SenderEmail, content.SenderName),
		rules:   p.rules,
	}
}
