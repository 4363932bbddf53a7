package classifier

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/ai"
	"github.com/spigell/mail-triage/internal/jsonx"
	"github.com/spigell/mail-triage/internal/normalize"
	"github.com/spigell/mail-triage/internal/utils"
)

const (
	systemPrompt = "あなたは高精度なメール分類の専門家です。個人の技術者紹介は必ずengineer_relatedに分類してください。"

	promptBodyLimit = 1500
)

//go:embed prompts/classify.md
var classifyPrompt string

var classifyTemplate = template.Must(template.New("classify").Parse(classifyPrompt))

type promptData struct {
	Subject     string
	Sender      string
	Body        string
	Attachments string
	Structure   StructuralAnalysis
}

type aiStage struct {
	base
	resolver          ai.Resolver
	logger            *zap.Logger
	defaultConfidence float64
	maxLogLength      int
}

func (st *aiStage) Name() string { return stageAI }

// Evaluate asks the primary provider, then the fallback once. A provider
// failure leaves the decision to the next stage.
func (st *aiStage) Evaluate(ctx context.Context, s *Signals) (Verdict, bool) {
	for _, fallback := range []bool{false, true} {
		client, err := st.resolver.Client(ctx, ai.Classification, fallback)
		if err != nil {
			if !errors.Is(err, ai.ErrNotConfigured) {
				st.logger.Warn("classification client unavailable",
					zap.String("ai_role", ai.RoleName(fallback)),
					zap.Error(err),
				)
			}
			continue
		}

		v, err := st.ask(ctx, client, s)
		if err != nil {
			st.logger.Warn("AI classification failed", append(client.Fields(), zap.Error(err))...)
			continue
		}

		v.Provider = client.Provider
		v.FallbackUsed = fallback
		return v, true
	}

	return Verdict{}, false
}

func (st *aiStage) ask(ctx context.Context, client *ai.Client, s *Signals) (Verdict, error) {
	if client.Classifier != nil {
		label, err := client.ClassifyCategory(ctx, s.Content.Subject+"\n"+utils.HeadRunes(s.Excerpt, promptBodyLimit))
		if err != nil {
			return Verdict{}, err
		}
		return st.parse(label), nil
	}

	prompt, err := renderPrompt(s)
	if err != nil {
		return Verdict{}, err
	}

	st.logger.Debug("classification prompt",
		append(client.Fields(), zap.String("prompt", utils.TruncateForLog(prompt, st.maxLogLength)))...)

	raw, err := client.Send(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: prompt},
	})
	if err != nil {
		return Verdict{}, err
	}

	st.logger.Debug("classification response",
		append(client.Fields(), zap.String("response", utils.TruncateForLog(raw, st.maxLogLength)))...)

	return st.parse(raw), nil
}

// parse reads {"category", "confidence", "reasoning"} from the answer, or
// matches the category label in plain text when no object is present.
func (st *aiStage) parse(raw string) Verdict {
	v := Verdict{Confidence: st.defaultConfidence}

	obj, ok := jsonx.Extract(raw)
	if !ok {
		v.Category = ParseCategory(raw)
		v.Reason = "ai answer without json"
		return v
	}

	label, _ := normalize.Text(obj["category"])
	v.Category = ParseCategory(label)

	if c, ok := confidence(obj["confidence"]); ok {
		v.Confidence = c
	}
	if reason, ok := normalize.Text(obj["reasoning"]); ok {
		v.Reason = reason
	}

	return v
}

func confidence(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

func renderPrompt(s *Signals) (string, error) {
	var buf bytes.Buffer
	err := classifyTemplate.Execute(&buf, promptData{
		Subject:     s.Content.Subject,
		Sender:      s.Content.SenderEmail,
		Body:        utils.HeadRunes(s.Excerpt, promptBodyLimit),
		Attachments: strings.Join(s.Content.Filenames(), ", "),
		Structure:   s.Structure(),
	})
	if err != nil {
		return "", fmt.Errorf("render classification prompt: %w", err)
	}
	return buf.String(), nil
}

func (st *aiStage) Status() Status {
	return Status{Name: st.Name(), Enabled: st.IsEnabled(), Reason: st.reason}
}
