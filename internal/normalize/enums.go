package normalize

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

type LanguageLevel string

const (
	LanguageUnspecified    LanguageLevel = "unspecified"
	LanguageConversational LanguageLevel = "conversational"
	LanguageBusiness       LanguageLevel = "business"
	LanguageNative         LanguageLevel = "native"
)

var languageLabels = map[LanguageLevel]string{
	LanguageUnspecified:    "不問",
	LanguageConversational: "日常会話レベル",
	LanguageBusiness:       "ビジネスレベル",
	LanguageNative:         "ネイティブレベル",
}

// Label returns the Japanese label stored by the persistence side.
func (l LanguageLevel) Label() string {
	return languageLabels[l]
}

type languageRule struct {
	pattern *regexp.Regexp
	level   LanguageLevel
}

func languageRuleFor(expr string, level LanguageLevel) languageRule {
	return languageRule{pattern: regexp.MustCompile(expr), level: level}
}

// languageRules is checked in order; the first match wins. Negated and
// "almost" forms come before the native tokens they contain, and JLPT
// levels are anchored so N10 or N12 never read as N1.
var languageRules = []languageRule{
	languageRuleFor(`non[\s-]?native|near[\s-]?native|ほぼ(?:ネイティブ|流暢)|ネイティブ(?:に近い|並み|ではない)|almost fluent`, LanguageBusiness),

	languageRuleFor(`(?:^|[^a-z0-9])n1(?:[^0-9]|$)`, LanguageNative),
	languageRuleFor(`(?:^|[^a-z0-9])n2(?:[^0-9]|$)`, LanguageBusiness),
	languageRuleFor(`(?:^|[^a-z0-9])n[3-5](?:[^0-9]|$)`, LanguageConversational),
	languageRuleFor(`(?:^|[^0-9])1級`, LanguageNative),
	languageRuleFor(`(?:^|[^0-9])2級`, LanguageBusiness),
	languageRuleFor(`(?:^|[^0-9])[3-5]級`, LanguageConversational),

	languageRuleFor(`ネイティブ|native|母国語|fluent|流暢`, LanguageNative),
	languageRuleFor(`ビジネス|business|問題なし|上級|advanced`, LanguageBusiness),
	languageRuleFor(`日常会話|conversational|basic|基本|初級|中級`, LanguageConversational),
	languageRuleFor(`不問|問わない|なし|none|不要`, LanguageUnspecified),
}

// levelDigitRe reads a standalone level digit such as "レベル4".
var levelDigitRe = regexp.MustCompile(`(?:^|[^0-9])([1-5])(?:[^0-9]|$)`)

// LanguageLevels lists the levels from the least to the most demanding.
var LanguageLevels = []LanguageLevel{LanguageUnspecified, LanguageConversational, LanguageBusiness, LanguageNative}

// LanguageLevel maps free-form input onto the four levels. nil stays nil;
// unmapped input becomes conversational and is logged.
func (n *Normalizer) LanguageLevel(field string, v any) *LanguageLevel {
	s, ok := Text(v)
	if !ok {
		return nil
	}

	level := n.languageLevel(field, s)
	return &level
}

func (n *Normalizer) languageLevel(field, s string) LanguageLevel {
	key := strings.ToLower(fold(s))
	if key == "" {
		return LanguageUnspecified
	}

	switch LanguageLevel(key) {
	case LanguageUnspecified, LanguageConversational, LanguageBusiness, LanguageNative:
		return LanguageLevel(key)
	}

	for _, rule := range languageRules {
		if rule.pattern.MatchString(key) {
			return rule.level
		}
	}

	if m := levelDigitRe.FindStringSubmatch(key); m != nil {
		switch m[1] {
		case "1":
			return LanguageNative
		case "2":
			return LanguageBusiness
		default:
			return LanguageConversational
		}
	}

	n.logger.Warn("unmapped language level, defaulting to conversational",
		zap.String("field", field),
		zap.String("input", s),
	)
	return LanguageConversational
}

type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderUndisclosed Gender = "undisclosed"
)

var (
	femaleTokens = map[string]struct{}{"f": {}, "female": {}, "woman": {}, "w": {}, "女": {}, "女性": {}}
	maleTokens   = map[string]struct{}{"m": {}, "male": {}, "man": {}, "男": {}, "男性": {}}
)

// Gender maps free-form input onto male, female or undisclosed. Female is
// checked first because "female" contains "male".
func (n *Normalizer) Gender(v any) *Gender {
	s, ok := Text(v)
	if !ok || s == "" {
		return nil
	}

	key := strings.ToLower(fold(s))

	g := GenderUndisclosed
	switch {
	case isToken(femaleTokens, key), strings.Contains(key, "female"), strings.Contains(key, "女"):
		g = GenderFemale
	case isToken(maleTokens, key), strings.Contains(key, "male"), strings.Contains(key, "男"):
		g = GenderMale
	}
	return &g
}

func isToken(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// Status is the sales lifecycle of an engineer profile.
type Status string

const (
	StatusProposing      Status = "proposing"
	StatusPreInterview   Status = "pre_interview"
	StatusInterview      Status = "interview"
	StatusAwaitingResult Status = "awaiting_result"
	StatusContracted     Status = "contracted"
	StatusClosed         Status = "closed"
	StatusArchived       Status = "archived"
)

var statusLabels = map[Status]string{
	StatusProposing:      "提案中",
	StatusPreInterview:   "事前面談",
	StatusInterview:      "面談",
	StatusAwaitingResult: "結果待ち",
	StatusContracted:     "契約中",
	StatusClosed:         "営業終了",
	StatusArchived:       "アーカイブ",
}

// Statuses lists the lifecycle in order.
var Statuses = []Status{
	StatusProposing, StatusPreInterview, StatusInterview, StatusAwaitingResult,
	StatusContracted, StatusClosed, StatusArchived,
}

// Label returns the Japanese label stored by the persistence side.
func (s Status) Label() string {
	return statusLabels[s]
}

type statusRule struct {
	token  string
	status Status
}

var statusRules = []statusRule{
	{"事前", StatusPreInterview},
	{"pre", StatusPreInterview},
	{"結果", StatusAwaitingResult},
	{"await", StatusAwaitingResult},
	{"waiting", StatusAwaitingResult},
	{"面談", StatusInterview},
	{"面接", StatusInterview},
	{"interview", StatusInterview},
	{"契約", StatusContracted},
	{"contract", StatusContracted},
	{"終了", StatusClosed},
	{"完了", StatusClosed},
	{"closed", StatusClosed},
	{"アーカイブ", StatusArchived},
	{"archive", StatusArchived},
	{"提案", StatusProposing},
	{"新規", StatusProposing},
	{"営業中", StatusProposing},
	{"propos", StatusProposing},
	{"new", StatusProposing},
}

// Status maps free-form input onto the lifecycle. Absent or unmapped input is proposing.
func (n *Normalizer) Status(v any) Status {
	s, ok := Text(v)
	if !ok || s == "" {
		return StatusProposing
	}

	key := strings.ToLower(fold(s))
	if _, known := statusLabels[Status(key)]; known {
		return Status(key)
	}

	for _, rule := range statusRules {
		if strings.Contains(key, rule.token) {
			return rule.status
		}
	}

	n.logger.Debug("unmapped status, defaulting to proposing", zap.String("input", s))
	return StatusProposing
}
