package classifier

import (
	"path"
	"regexp"
	"strings"

	"github.com/spigell/mail-triage/internal/email"
	"github.com/spigell/mail-triage/internal/rules"
)

// StructuralAnalysis counts layout markers of each category.
type StructuralAnalysis struct {
	UltraEngineer  int `json:"ultra_engineer"`
	UltraProject   int `json:"ultra_project"`
	PersonalFields int `json:"personal_fields"`
	ProjectFields  int `json:"project_fields"`
	// Decisive is empty when no rule fired.
	Decisive   Category `json:"decisive,omitempty"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators,omitempty"`
}

// AnalyzeStructure scores text against the ultra-strong markers and the
// form-field labels of both categories.
func AnalyzeStructure(s rules.Structure, text string) StructuralAnalysis {
	var a StructuralAnalysis

	for _, p := range s.Engineer.Ultra {
		if n := p.Count(text); n > 0 {
			a.UltraEngineer += n * s.UltraWeight
			a.Indicators = append(a.Indicators, "engineer:"+p.Expr)
		}
	}
	for _, p := range s.Project.Ultra {
		if n := p.Count(text); n > 0 {
			a.UltraProject += n * s.UltraWeight
			a.Indicators = append(a.Indicators, "project:"+p.Expr)
		}
	}
	for _, f := range s.Engineer.Fields {
		a.PersonalFields += f.Count(text) * s.FieldWeight
	}
	for _, f := range s.Project.Fields {
		a.ProjectFields += f.Count(text) * s.FieldWeight
	}

	switch {
	case a.UltraEngineer >= s.UltraThreshold:
		a.Decisive, a.Confidence = EngineerRelated, s.UltraConfidence
	case a.UltraProject >= s.UltraThreshold:
		a.Decisive, a.Confidence = ProjectRelated, s.UltraConfidence
	case a.PersonalFields >= s.FieldThreshold:
		a.Decisive, a.Confidence = EngineerRelated, s.FieldConfidence
	case a.ProjectFields >= s.FieldThreshold:
		a.Decisive, a.Confidence = ProjectRelated, s.FieldConfidence
	}

	return a
}

// KeywordScores holds lexicon scores of both categories.
type KeywordScores struct {
	Project       float64  `json:"project"`
	Engineer      float64  `json:"engineer"`
	ProjectTerms  []string `json:"project_terms,omitempty"`
	EngineerTerms []string `json:"engineer_terms,omitempty"`
}

// ScoreKeywords sums the tier weight of every lexicon term contained in text.
// Matching is case-insensitive.
func ScoreKeywords(w rules.Weights, lex rules.Lexicon, text string) (float64, []string) {
	text = strings.ToLower(text)

	var (
		score float64
		terms []string
	)
	tiers := []struct {
		weight float64
		words  []string
	}{
		{w.Top, lex.Top},
		{w.High, lex.High},
		{w.Medium, lex.Medium},
	}

	for _, tier := range tiers {
		for _, word := range tier.words {
			if word == "" || !strings.Contains(text, strings.ToLower(word)) {
				continue
			}
			score += tier.weight
			terms = append(terms, word)
		}
	}

	return score, terms
}

func scoreBoth(k rules.Keywords, text string) KeywordScores {
	var s KeywordScores
	s.Project, s.ProjectTerms = ScoreKeywords(k.Weights, k.Project, text)
	s.Engineer, s.EngineerTerms = ScoreKeywords(k.Weights, k.Engineer, text)
	return s
}

// AttachmentAnalysis is the filename signal of a message.
type AttachmentAnalysis struct {
	ResumeFiles  []string `json:"resume_files,omitempty"`
	ResumeHits   []string `json:"resume_hits,omitempty"`
	ProjectHits  []string `json:"project_hits,omitempty"`
	Signal       Category `json:"signal,omitempty"`
	Confidence   float64  `json:"confidence"`
	TotalEntries int      `json:"total"`
}

// AnalyzeAttachments inspects attachment names. A resume file is one with a
// resume extension whose name either matches a resume pattern or carries a
// bare document extension. With ProjectNamesExcludeBare set, a project-looking
// name disqualifies the bare extension.
func AnalyzeAttachments(r rules.AttachmentRules, attachments []email.Attachment) AttachmentAnalysis {
	a := AttachmentAnalysis{TotalEntries: len(attachments)}

	for _, att := range attachments {
		name := strings.ToLower(att.Name())
		if name == "" {
			continue
		}

		resumeHit := matchesAny(r.Resume, name)
		projectHit := matchesAny(r.Project, name)

		if isResumeFile(r, name, resumeHit, projectHit) {
			a.ResumeFiles = append(a.ResumeFiles, att.Name())
		}

		if resumeHit {
			a.ResumeHits = append(a.ResumeHits, att.Name())
			a.Signal, a.Confidence = EngineerRelated, r.ResumeConfidence
		}

		if projectHit {
			a.ProjectHits = append(a.ProjectHits, att.Name())
			if a.Confidence < r.ProjectConfidence {
				a.Signal, a.Confidence = ProjectRelated, r.ProjectConfidence
			}
		}
	}

	if len(a.ResumeFiles) > 0 {
		a.Signal, a.Confidence = EngineerRelated, r.ResumeFileConfidence
	}

	return a
}

// ResumeFiles returns the attachments treated as resumes.
func ResumeFiles(r rules.AttachmentRules, attachments []email.Attachment) []email.Attachment {
	var out []email.Attachment
	for _, att := range attachments {
		name := strings.ToLower(att.Name())
		if name == "" {
			continue
		}
		if isResumeFile(r, name, matchesAny(r.Resume, name), matchesAny(r.Project, name)) {
			out = append(out, att)
		}
	}
	return out
}

func isResumeFile(r rules.AttachmentRules, name string, resumeHit, projectHit bool) bool {
	ext := path.Ext(name)
	if !containsString(r.ResumeExtensions, ext) {
		return false
	}
	if resumeHit {
		return true
	}
	if projectHit && r.ProjectNamesExcludeBare {
		return false
	}
	return containsString(r.BareResumeExtensions, ext)
}

func matchesAny(patterns []rules.Pattern, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// SenderAnalysis describes the sender address.
type SenderAnalysis struct {
	Local      string  `json:"local,omitempty"`
	Domain     string  `json:"domain,omitempty"`
	Recruiting bool    `json:"recruiting"`
	Suspicious bool    `json:"suspicious"`
	Confidence float64 `json:"confidence"`
	Indicator  string  `json:"indicator,omitempty"`
}

var addressTokenRe = regexp.MustCompile(`[.\-_+]`)

// AnalyzeSender checks the address against the recruiting and suspicious
// pattern sets. Recruiting patterns must prefix a domain or local-part token,
// or appear in the display name; suspicious patterns may appear anywhere in
// the address. Suspicious wins.
func AnalyzeSender(r rules.SenderRules, address, name string) SenderAnalysis {
	address = strings.ToLower(strings.TrimSpace(address))
	name = strings.ToLower(name)

	var a SenderAnalysis
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return a
	}
	a.Local, a.Domain = address[:at], address[at+1:]

	tokens := addressTokenRe.Split(a.Local+"."+a.Domain, -1)
	for _, pattern := range r.Recruiting {
		pattern = strings.ToLower(pattern)
		if pattern == "" {
			continue
		}
		if hasTokenPrefix(tokens, pattern) || strings.Contains(name, pattern) {
			a.Recruiting = true
			a.Confidence = r.RecruitingConfidence
			a.Indicator = "recruiting:" + pattern
			break
		}
	}

	for _, pattern := range r.Suspicious {
		pattern = strings.ToLower(pattern)
		if pattern != "" && strings.Contains(address, pattern) {
			a.Recruiting = false
			a.Suspicious = true
			a.Confidence = r.SuspiciousConfidence
			a.Indicator = "suspicious:" + pattern
			break
		}
	}

	return a
}

func hasTokenPrefix(tokens []string, prefix string) bool {
	for _, t := range tokens {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// SpamCheck is the result of the exclusion gate.
type SpamCheck struct {
	Hits             []string `json:"hits,omitempty"`
	SuspiciousSender bool     `json:"suspicious_sender"`
	Spam             bool     `json:"spam"`
}

// CheckSpam counts exclusion keywords in subject and body.
func CheckSpam(r rules.SpamRules, text string, sender SenderAnalysis) SpamCheck {
	lower := strings.ToLower(text)

	c := SpamCheck{SuspiciousSender: sender.Suspicious}
	for _, k := range r.Keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			c.Hits = append(c.Hits, k)
		}
	}

	c.Spam = len(c.Hits) >= r.Threshold || c.SuspiciousSender
	return c
}
