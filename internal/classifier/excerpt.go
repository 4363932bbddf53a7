package classifier

import (
	"strings"

	"github.com/spigell/mail-triage/internal/rules"
	"github.com/spigell/mail-triage/internal/utils"
)

const minParagraphBudget = 100

// Excerpter keeps the head, the keyword-dense paragraphs and the tail of long bodies.
type Excerpter struct {
	rules    rules.ExcerptRules
	keywords []string
}

func NewExcerpter(r rules.ExcerptRules) *Excerpter {
	keywords := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Excerpter{rules: r, keywords: keywords}
}

// Extract returns body unchanged when it fits, otherwise a bounded excerpt.
func (e *Excerpter) Extract(body string) string {
	if len([]rune(body)) <= e.rules.MaxLength {
		return body
	}

	var b strings.Builder
	b.WriteString(utils.HeadRunes(body, e.rules.HeadLength))

	if paragraphs := e.paragraphs(body); len(paragraphs) > 0 {
		b.WriteString("\n\n")
		b.WriteString(e.rules.ParagraphLabel)
		b.WriteString("\n")
		b.WriteString(strings.Join(paragraphs, "\n"))
	}

	if tail := utils.TailRunes(body, e.rules.TailLength); tail != "" {
		b.WriteString("\n\n")
		b.WriteString(e.rules.TailLabel)
		b.WriteString("\n")
		b.WriteString(tail)
	}

	return b.String()
}

// paragraphs returns up to MaxParagraphs line windows around lines with
// enough keyword hits. Windows never overlap.
func (e *Excerpter) paragraphs(body string) []string {
	if e.rules.MaxParagraphs <= 0 {
		return nil
	}

	budget := (e.rules.MaxLength - e.rules.HeadLength - e.rules.TailLength) / e.rules.MaxParagraphs
	if budget < minParagraphBudget {
		budget = minParagraphBudget
	}

	lines := strings.Split(body, "\n")
	out := make([]string, 0, e.rules.MaxParagraphs)
	lastEnd := -1

	for i, line := range lines {
		if e.lineScore(line) < e.rules.KeywordThreshold {
			continue
		}

		start := max(0, i-e.rules.ContextLines)
		end := min(len(lines), i+e.rules.ContextLines+1)
		if start < lastEnd {
			continue
		}

		window := strings.Join(lines[start:end], "\n")
		out = append(out, utils.HeadRunes(window, budget))
		lastEnd = end

		if len(out) == e.rules.MaxParagraphs {
			break
		}
	}

	return out
}

func (e *Excerpter) lineScore(line string) int {
	line = strings.ToLower(line)
	score := 0
	for _, k := range e.keywords {
		if strings.Contains(line, k) {
			score++
		}
	}
	return score
}
