// Package rules loads the lexicons, regular expressions and thresholds that
// drive the deterministic classification stages.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultRules []byte

type Rules struct {
	Structure     Structure       `yaml:"structure"`
	Keywords      Keywords        `yaml:"keywords"`
	Attachments   AttachmentRules `yaml:"attachments"`
	Sender        SenderRules     `yaml:"sender"`
	Spam          SpamRules       `yaml:"spam"`
	Excerpt       ExcerptRules    `yaml:"excerpt"`
	Decision      Decision        `yaml:"decision"`
	Informational []string        `yaml:"informational"`
}

type Structure struct {
	UltraWeight     int              `yaml:"ultra_weight"`
	FieldWeight     int              `yaml:"field_weight"`
	UltraThreshold  int              `yaml:"ultra_threshold"`
	FieldThreshold  int              `yaml:"field_threshold"`
	UltraConfidence float64          `yaml:"ultra_confidence"`
	FieldConfidence float64          `yaml:"field_confidence"`
	Engineer        CategoryPatterns `yaml:"engineer"`
	Project         CategoryPatterns `yaml:"project"`
}

// CategoryPatterns holds free-form document markers and bracketed field labels.
type CategoryPatterns struct {
	Ultra  []Pattern `yaml:"ultra"`
	Fields []Field   `yaml:"fields"`
}

type Keywords struct {
	Weights  Weights `yaml:"weights"`
	Project  Lexicon `yaml:"project"`
	Engineer Lexicon `yaml:"engineer"`
}

type Weights struct {
	Top    float64 `yaml:"top"`
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

type Lexicon struct {
	Top    []string `yaml:"top"`
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
}

type AttachmentRules struct {
	Resume               []Pattern `yaml:"resume"`
	Project              []Pattern `yaml:"project"`
	ResumeExtensions     []string  `yaml:"resume_extensions"`
	BareResumeExtensions []string  `yaml:"bare_resume_extensions"`
	ResumeConfidence     float64   `yaml:"resume_confidence"`
	ProjectConfidence    float64   `yaml:"project_confidence"`
	ResumeFileConfidence float64   `yaml:"resume_file_confidence"`
	// ProjectNamesExcludeBare stops a bare document extension from counting
	// as a resume when the name matches a project pattern. Off by default.
	ProjectNamesExcludeBare bool `yaml:"project_names_exclude_bare"`
	// Threshold is exclusive: the attachment stage decides only above it.
	Threshold float64 `yaml:"threshold"`
}

type SenderRules struct {
	Recruiting           []string `yaml:"recruiting"`
	Suspicious           []string `yaml:"suspicious"`
	RecruitingConfidence float64  `yaml:"recruiting_confidence"`
	SuspiciousConfidence float64  `yaml:"suspicious_confidence"`
	RecruitingBoost      float64  `yaml:"recruiting_boost"`
}

type SpamRules struct {
	Threshold int      `yaml:"threshold"`
	Keywords  []string `yaml:"keywords"`
}

type ExcerptRules struct {
	MaxLength        int      `yaml:"max_length"`
	HeadLength       int      `yaml:"head_length"`
	TailLength       int      `yaml:"tail_length"`
	ContextLines     int      `yaml:"context_lines"`
	KeywordThreshold int      `yaml:"keyword_threshold"`
	MaxParagraphs    int      `yaml:"max_paragraphs"`
	ParagraphLabel   string   `yaml:"paragraph_label"`
	TailLabel        string   `yaml:"tail_label"`
	Keywords         []string `yaml:"keywords"`
}

type Decision struct {
	Margin                  float64 `yaml:"margin"`
	Floor                   float64 `yaml:"floor"`
	FallbackFloor           float64 `yaml:"fallback_floor"`
	FieldBonus              float64 `yaml:"field_bonus"`
	UltraBonus              float64 `yaml:"ultra_bonus"`
	BaseConfidence          float64 `yaml:"base_confidence"`
	ConfidenceStep          float64 `yaml:"confidence_step"`
	MaxConfidence           float64 `yaml:"max_confidence"`
	FallbackConfidence      float64 `yaml:"fallback_confidence"`
	AIDefaultConfidence     float64 `yaml:"ai_default_confidence"`
	InformationalConfidence float64 `yaml:"informational_confidence"`
}

// Default returns a fresh copy of the built-in rule table.
func Default() (*Rules, error) {
	r := &Rules{}
	if err := yaml.Unmarshal(defaultRules, r); err != nil {
		return nil, fmt.Errorf("parse built-in rules: %w", err)
	}
	return r, nil
}

// Load reads a rule file on top of the built-in table. Keys missing from the
// file keep their built-in values; lists present in the file replace them.
func Load(path string) (*Rules, error) {
	r, err := Default()
	if err != nil {
		return nil, err
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse rules file %q: %w", path, err)
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("rules file %q: %w", path, err)
	}

	return r, nil
}

// Validate reports inconsistent thresholds.
func (r *Rules) Validate() error {
	var errs []error

	if r.Structure.UltraThreshold <= 0 || r.Structure.FieldThreshold <= 0 {
		errs = append(errs, errors.New("structure thresholds must be positive"))
	}
	if w := r.Keywords.Weights; w.Top <= 0 || w.High <= 0 || w.Medium <= 0 {
		errs = append(errs, errors.New("keyword weights must be positive"))
	}
	if r.Spam.Threshold < 1 {
		errs = append(errs, errors.New("spam threshold must be at least 1"))
	}
	if r.Excerpt.MaxLength < 500 {
		errs = append(errs, errors.New("excerpt max_length must be at least 500"))
	}
	if r.Excerpt.HeadLength >= r.Excerpt.MaxLength {
		errs = append(errs, errors.New("excerpt head_length must be smaller than max_length"))
	}
	if r.Attachments.Threshold < 0 || r.Attachments.Threshold > 1 {
		errs = append(errs, errors.New("attachment threshold must be within [0, 1]"))
	}
	if r.Decision.Margin < 0 || r.Decision.Floor <= 0 || r.Decision.FallbackFloor <= 0 {
		errs = append(errs, errors.New("decision margin must be non-negative and floors positive"))
	}

	return errors.Join(errs...)
}

// Pattern is a regular expression compiled when the rule table is decoded.
type Pattern struct {
	Expr string
	re   *regexp.Regexp
}

func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	var expr string
	if err := node.Decode(&expr); err != nil {
		return err
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("line %d: compile pattern %q: %w", node.Line, expr, err)
	}

	p.Expr = expr
	p.re = re
	return nil
}

// Count returns the number of non-overlapping matches in s.
func (p Pattern) Count(s string) int {
	if p.re == nil {
		return 0
	}
	return len(p.re.FindAllStringIndex(s, -1))
}

func (p Pattern) MatchString(s string) bool {
	return p.re != nil && p.re.MatchString(s)
}

// fieldPrefix allows bullets and indentation in front of a field label.
const fieldPrefix = `(?m)^[\s　・■●◆◇□\-\*]*`

// Field is a form label such as "氏名" that counts when it appears either in
// brackets ("【氏名】山田") or followed by a colon ("氏名：山田") at the start
// of a line, with a value after it.
type Field struct {
	Label string
	re    *regexp.Regexp
}

// NewField compiles a field matcher for label.
func NewField(label string) (Field, error) {
	expr := fieldPrefix +
		`(?:【(?:` + label + `)[^】]{0,3}】|(?:` + label + `)[\s　]*[:：])` +
		`[\s　]*[:：]?[\s　]*\S`

	re, err := regexp.Compile(expr)
	if err != nil {
		return Field{}, fmt.Errorf("compile field label %q: %w", label, err)
	}

	return Field{Label: label, re: re}, nil
}

func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	var label string
	if err := node.Decode(&label); err != nil {
		return err
	}

	field, err := NewField(label)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}

	*f = field
	return nil
}

// Count returns how many lines carry the field.
func (f Field) Count(s string) int {
	if f.re == nil {
		return 0
	}
	return len(f.re.FindAllStringIndex(s, -1))
}
