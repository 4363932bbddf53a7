// Package processing runs classification and extraction for one message and
// reports the outcome handed to the persistence side.
package processing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/classifier"
	"github.com/spigell/mail-triage/internal/email"
	"github.com/spigell/mail-triage/internal/extraction"
	"github.com/spigell/mail-triage/internal/logger"
	"github.com/spigell/mail-triage/internal/records"
	"github.com/spigell/mail-triage/internal/rules"
)

type Status string

const (
	StatusProcessed Status = "processed"
	StatusError     Status = "error"
)

// Outcome is never dropped: a message that cannot be handled carries
// StatusError and a reason.
type Outcome struct {
	ID           string                    `json:"id"`
	MessageID    string                    `json:"message_id,omitempty"`
	Subject      string                    `json:"subject"`
	Category     classifier.Category       `json:"category"`
	Confidence   float64                   `json:"confidence"`
	Stage        string                    `json:"stage"`
	Status       Status                    `json:"status"`
	Reason       string                    `json:"reason,omitempty"`
	Project      *records.ProjectRecord    `json:"project,omitempty"`
	Engineers    []*records.EngineerRecord `json:"engineers,omitempty"`
	Provider     string                    `json:"provider,omitempty"`
	FallbackUsed bool                      `json:"fallback_used"`
	ProcessedAt  time.Time                 `json:"processed_at"`
}

type Classifier interface {
	Classify(ctx context.Context, content *email.Content) classifier.Verdict
	Excerpt(content *email.Content) string
}

type Extractor interface {
	ExtractProject(ctx context.Context, content *email.Content, excerpt string) extraction.Result
	ExtractEngineer(ctx context.Context, content *email.Content, excerpt string) extraction.Result
	ExtractResume(ctx context.Context, text, filename string) extraction.Result
}

type Processor struct {
	classifier  Classifier
	extractor   Extractor
	attachments rules.AttachmentRules
	logger      *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(c Classifier, e Extractor, attachments rules.AttachmentRules, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		classifier:  c,
		extractor:   e,
		attachments: attachments,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// ProcessAll handles messages in order. Messages left after cancellation are
// reported with StatusError.
func (p *Processor) ProcessAll(ctx context.Context, contents []*email.Content) []Outcome {
	outcomes := make([]Outcome, 0, len(contents))
	for _, content := range contents {
		if err := ctx.Err(); err != nil {
			o := p.newOutcome(content)
			o.Status = StatusError
			o.Reason = "cancelled: " + err.Error()
			outcomes = append(outcomes, o)
			continue
		}
		outcomes = append(outcomes, p.Process(ctx, content))
	}
	return outcomes
}

func (p *Processor) Process(ctx context.Context, content *email.Content) Outcome {
	o := p.newOutcome(content)
	if content == nil {
		o.Category = classifier.Unclassified
		o.Status = StatusError
		o.Reason = "empty message"
		return o
	}

	verdict := p.classifier.Classify(ctx, content)
	o.Category = verdict.Category
	o.Confidence = verdict.Confidence
	o.Stage = verdict.Stage
	o.Status = StatusProcessed

	switch verdict.Category {
	case classifier.ProjectRelated:
		res := p.extractor.ExtractProject(ctx, content, p.classifier.Excerpt(content))
		p.apply(&o, res)
	case classifier.EngineerRelated:
		p.processEngineer(ctx, content, &o)
	default:
		o.Reason = verdict.Reason
	}

	p.logger.Info("message processed", append(logger.MessageFields(o.MessageID, o.Subject),
		zap.String("id", o.ID),
		zap.String("category", string(o.Category)),
		zap.String("stage", o.Stage),
		zap.String("status", string(o.Status)),
		zap.Bool("fallback_used", o.FallbackUsed),
	)...)

	return o
}

// processEngineer extracts one profile per resume attachment that carries
// text and falls back to the message body when none yields a record.
func (p *Processor) processEngineer(ctx context.Context, content *email.Content, o *Outcome) {
	var reasons []string

	for _, att := range classifier.ResumeFiles(p.attachments, content.Attachments) {
		if strings.TrimSpace(att.Text) == "" {
			continue
		}

		res := p.extractor.ExtractResume(ctx, att.Text, att.Name())
		if !res.OK() {
			reasons = append(reasons, att.Name()+": "+res.Reason)
			p.logger.Warn("resume extraction failed", append(logger.MessageFields(content.MessageID, content.Subject),
				zap.String("filename", att.Name()),
				zap.String("reason", res.Reason),
			)...)
			continue
		}

		o.Engineers = append(o.Engineers, res.Engineer)
		o.FallbackUsed = o.FallbackUsed || res.FallbackUsed
		if o.Provider == "" {
			o.Provider = res.Provider
		}
	}

	if len(o.Engineers) > 0 {
		return
	}

	res := p.extractor.ExtractEngineer(ctx, content, p.classifier.Excerpt(content))
	if !res.OK() {
		reasons = append(reasons, "body: "+res.Reason)
		o.Status = StatusError
		o.Reason = strings.Join(reasons, "; ")
		return
	}

	o.Engineers = append(o.Engineers, res.Engineer)
	o.Provider = res.Provider
	o.FallbackUsed = res.FallbackUsed
}

func (p *Processor) apply(o *Outcome, res extraction.Result) {
	if !res.OK() {
		o.Status = StatusError
		o.Reason = res.Reason
		return
	}
	o.Project = res.Project
	o.Provider = res.Provider
	o.FallbackUsed = res.FallbackUsed
}

func (p *Processor) newOutcome(content *email.Content) Outcome {
	o := Outcome{ID: p.newID(), ProcessedAt: p.now().UTC()}
	if content != nil {
		o.MessageID = content.MessageID
		o.Subject = content.Subject
	}
	return o
}
