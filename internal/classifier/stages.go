package classifier

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spigell/mail-triage/internal/email"
	"github.com/spigell/mail-triage/internal/rules"
)

const (
	stageSpam       = "spam"
	stageStructure  = "structure"
	stageAttachment = "attachment"
	stageKeyword    = "keyword"
	stageAI         = "ai"
	stageFallback   = "fallback"

	spamConfidence = 1.0
)

// Stage is one step of the decision pipeline. Evaluate reports whether the
// stage decided; an undecided stage hands over to the next one.
type Stage interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Evaluate(ctx context.Context, s *Signals) (Verdict, bool)
}

// Status represents runtime information about a stage.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// Describe returns status entries for the provided stages.
func Describe(stages []Stage) []Status {
	statuses := make([]Status, 0, len(stages))
	for _, stage := range stages {
		if reporter, ok := stage.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    stage.Name(),
			Enabled: stage.IsEnabled(),
		})
	}
	return statuses
}

// DisableByName marks a stage with the provided name as disabled while keeping it in the list.
func DisableByName(stages []Stage, name, reason string) {
	for _, stage := range stages {
		if stage.Name() == name {
			stage.Disable(reason)
		}
	}
}

// Signals is the per-call scratch shared by the stages. Analyses are computed
// on first use so that a stage which decides early spares the later work.
type Signals struct {
	Content *email.Content
	Text    string
	Excerpt string
	Sender  SenderAnalysis

	rules *rules.Rules

	structure    *StructuralAnalysis
	attachments  *AttachmentAnalysis
	keywords     *KeywordScores
	spam         *SpamCheck
	finalScoring *FinalScores
}

// FinalScores are keyword scores plus the structural bonus.
type FinalScores struct {
	Project  float64 `json:"project"`
	Engineer float64 `json:"engineer"`
}

func (s *Signals) Structure() StructuralAnalysis {
	if s.structure == nil {
		a := AnalyzeStructure(s.rules.Structure, s.Text)
		s.structure = &a
	}
	return *s.structure
}

func (s *Signals) Attachments() AttachmentAnalysis {
	if s.attachments == nil {
		a := AnalyzeAttachments(s.rules.Attachments, s.Content.Attachments)
		s.attachments = &a
	}
	return *s.attachments
}

func (s *Signals) Keywords() KeywordScores {
	if s.keywords == nil {
		k := scoreBoth(s.rules.Keywords, s.Excerpt)
		s.keywords = &k
	}
	return *s.keywords
}

func (s *Signals) Spam() SpamCheck {
	if s.spam == nil {
		c := CheckSpam(s.rules.Spam, s.Content.Subject+" "+s.Content.PlainText(), s.Sender)
		s.spam = &c
	}
	return *s.spam
}

// Final adds the structural bonus to the keyword scores.
func (s *Signals) Final() FinalScores {
	if s.finalScoring == nil {
		k := s.Keywords()
		st := s.Structure()
		d := s.rules.Decision
		f := FinalScores{
			Engineer: k.Engineer + float64(st.PersonalFields)*d.FieldBonus + float64(st.UltraEngineer)*d.UltraBonus,
			Project:  k.Project + float64(st.ProjectFields)*d.FieldBonus + float64(st.UltraProject)*d.UltraBonus,
		}
		s.finalScoring = &f
	}
	return *s.finalScoring
}

// base carries the enable switch shared by all stages.
type base struct {
	disabled bool
	reason   string
}

func (b *base) Disable(reason string) {
	b.disabled = true
	b.reason = reason
}

func (b *base) IsEnabled() bool { return !b.disabled }

type spamStage struct{ base }

func (st *spamStage) Name() string { return stageSpam }

func (st *spamStage) Evaluate(_ context.Context, s *Signals) (Verdict, bool) {
	check := s.Spam()
	if !check.Spam {
		return Verdict{}, false
	}

	reason := "exclusion keywords: " + strings.Join(check.Hits, ", ")
	confidence := spamConfidence
	if check.SuspiciousSender {
		reason = "suspicious sender: " + s.Sender.Indicator
		confidence = s.Sender.Confidence
	}

	return Verdict{Category: Unclassified, Confidence: confidence, Reason: reason}, true
}

func (st *spamStage) Status() Status {
	return Status{Name: st.Name(), Enabled: st.IsEnabled(), Reason: st.reason}
}

type structureStage struct{ base }

func (st *structureStage) Name() string { return stageStructure }

func (st *structureStage) Evaluate(_ context.Context, s *Signals) (Verdict, bool) {
	a := s.Structure()
	if a.Decisive == "" {
		return Verdict{}, false
	}

	return Verdict{
		Category:   a.Decisive,
		Confidence: a.Confidence,
		Reason: fmt.Sprintf("structure ultra=%d/%d fields=%d/%d",
			a.UltraEngineer, a.UltraProject, a.PersonalFields, a.ProjectFields),
	}, true
}

func (st *structureStage) Status() Status {
	return Status{Name: st.Name(), Enabled: st.IsEnabled(), Reason: st.reason}
}

type attachmentStage struct {
	base
	threshold float64
}

func (st *attachmentStage) Name() string { return stageAttachment }

func (st *attachmentStage) Evaluate(_ context.Context, s *Signals) (Verdict, bool) {
	a := s.Attachments()
	if a.Signal == "" || a.Confidence <= st.threshold {
		return Verdict{}, false
	}

	files := a.ResumeFiles
	if len(files) == 0 {
		files = slices.Concat(a.ResumeHits, a.ProjectHits)
	}

	return Verdict{
		Category:   a.Signal,
		Confidence: a.Confidence,
		Reason:     "attachments: " + strings.Join(files, ", "),
	}, true
}

func (st *attachmentStage) Status() Status {
	return Status{
		Name:    st.Name(),
		Enabled: st.IsEnabled(),
		Reason:  st.reason,
		Details: map[string]string{"threshold": strconv.FormatFloat(st.threshold, 'f', 2, 64)},
	}
}

type keywordStage struct {
	base
	decision rules.Decision
	boost    float64
}

func (st *keywordStage) Name() string { return stageKeyword }

func (st *keywordStage) Evaluate(_ context.Context, s *Signals) (Verdict, bool) {
	f := s.Final()
	d := st.decision

	var (
		category Category
		score    float64
	)
	switch {
	case f.Engineer > f.Project+d.Margin && f.Engineer > d.Floor:
		category, score = EngineerRelated, f.Engineer
	case f.Project > f.Engineer+d.Margin && f.Project > d.Floor:
		category, score = ProjectRelated, f.Project
	default:
		return Verdict{}, false
	}

	confidence := min(d.MaxConfidence, d.BaseConfidence+score*d.ConfidenceStep)
	if category == EngineerRelated && s.Sender.Recruiting {
		confidence = min(d.MaxConfidence, confidence+st.boost)
	}

	return Verdict{
		Category:   category,
		Confidence: confidence,
		Reason:     fmt.Sprintf("keyword scores engineer=%.1f project=%.1f", f.Engineer, f.Project),
	}, true
}

func (st *keywordStage) Status() Status {
	return Status{
		Name:    st.Name(),
		Enabled: st.IsEnabled(),
		Reason:  st.reason,
		Details: map[string]string{
			"margin": strconv.FormatFloat(st.decision.Margin, 'f', 1, 64),
			"floor":  strconv.FormatFloat(st.decision.Floor, 'f', 1, 64),
		},
	}
}

// fallbackStage uses the lower keyword floor only while the AI stage is
// unavailable; after an AI failure it goes straight to the informational check.
type fallbackStage struct {
	base
	decision      rules.Decision
	informational []string
	ai            Stage
}

func (st *fallbackStage) keywordsAllowed() bool {
	return st.ai == nil || !st.ai.IsEnabled()
}

func (st *fallbackStage) Name() string { return stageFallback }

func (st *fallbackStage) Evaluate(_ context.Context, s *Signals) (Verdict, bool) {
	f := s.Final()
	d := st.decision
	reason := fmt.Sprintf("fallback scores engineer=%.1f project=%.1f", f.Engineer, f.Project)

	if st.keywordsAllowed() {
		switch {
		case f.Engineer > f.Project && f.Engineer > d.FallbackFloor:
			return Verdict{Category: EngineerRelated, Confidence: d.FallbackConfidence, Reason: reason}, true
		case f.Project > f.Engineer && f.Project > d.FallbackFloor:
			return Verdict{Category: ProjectRelated, Confidence: d.FallbackConfidence, Reason: reason}, true
		}
	}

	lower := strings.ToLower(s.Excerpt)
	for _, term := range st.informational {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return Verdict{
				Category:   Other,
				Confidence: d.InformationalConfidence,
				Reason:     "informational term: " + term,
			}, true
		}
	}

	return Verdict{Category: Unclassified, Reason: reason}, true
}

func (st *fallbackStage) Disable(string) {}

func (st *fallbackStage) IsEnabled() bool { return true }

func (st *fallbackStage) Status() Status {
	return Status{
		Name:    st.Name(),
		Enabled: true,
		Details: map[string]string{
			"floor":          strconv.FormatFloat(st.decision.FallbackFloor, 'f', 1, 64),
			"keyword_scores": strconv.FormatBool(st.keywordsAllowed()),
		},
	}
}
