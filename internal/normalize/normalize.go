// Package normalize coerces loosely typed model output into schema values.
// Every function is total: it never panics and never returns an error.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/text/width"
)

const (
	dateLayout = "2006-01-02"
	maxInt     = math.MaxInt32
)

var (
	digitRunRe      = regexp.MustCompile(`\d+`)
	thousandsRe     = regexp.MustCompile(`(\d),(\d{3})`)
	isoDateRe       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	japaneseDateRe  = regexp.MustCompile(`^(\d{4})年(\d{1,2})月?(?:(\d{1,2})日?)?`)
	numericDateRe   = regexp.MustCompile(`^(\d{4})[/\-.](\d{1,2})(?:[/\-.](\d{1,2}))?`)
	fourDigitYearRe = regexp.MustCompile(`(?:19|20)\d{2}`)
	listSeparatorRe = regexp.MustCompile(`[,、，]`)
	eraYearRe       = regexp.MustCompile(`(?i)(平成|令和|昭和|\b[hrs]\.?)\s*(\d{1,2}|元)(?:\D|$)`)

	// eraOffsets maps Japanese era markers to the year before the era's first year.
	eraOffsets = map[string]int{
		"平成": 1988, "h": 1988,
		"令和": 2018, "r": 2018,
		"昭和": 1925, "s": 1925,
	}

	immediatePhrases = []string{"即日", "即時", "今すぐ", "すぐ", "asap", "immediately", "immediate"}

	truthy = map[string]struct{}{
		"true": {}, "yes": {}, "y": {}, "1": {}, "ok": {},
		"可能": {}, "可": {}, "対応可能": {}, "はい": {}, "〇": {}, "○": {},
	}
)

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Normalizer carries the clock and the logger used to report lossy defaults.
type Normalizer struct {
	Now    func() time.Time
	logger *zap.Logger
}

func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{Now: time.Now, logger: logger}
}

// Today returns the current date as YYYY-MM-DD.
func (n *Normalizer) Today() string {
	return n.Now().Format(dateLayout)
}

// Text stringifies v. ok is false for nil.
func Text(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	case fmt.Stringer:
		return strings.TrimSpace(val.String()), true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return strings.TrimSpace(fmt.Sprintf("%v", v)), true
		}
		return string(data), true
	}
}

// fold converts full-width letters and digits to their ASCII forms.
func fold(s string) string {
	return width.Fold.String(strings.TrimSpace(s))
}

// String returns nil for absent or blank values.
func (n *Normalizer) String(v any) *string {
	s, ok := Text(v)
	if !ok || s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

// RequiredString substitutes sentinel for absent or blank values.
func (n *Normalizer) RequiredString(field string, v any, sentinel string) string {
	if s := n.String(v); s != nil {
		return *s
	}
	n.logger.Debug("required field missing, using sentinel",
		zap.String("field", field),
		zap.String("sentinel", sentinel),
	)
	return sentinel
}

// List returns an empty slice for absent values, splits comma separated
// strings and stringifies list elements.
func (n *Normalizer) List(v any) []string {
	out := []string{}

	switch val := v.(type) {
	case nil:
	case []string:
		for _, item := range val {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	case []any:
		for _, item := range val {
			if s, ok := Text(item); ok && s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, item := range listSeparatorRe.Split(val, -1) {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	default:
		if s, ok := Text(val); ok && s != "" {
			out = append(out, s)
		}
	}

	return out
}

// Bool matches v against the truthy phrase set. Anything else is false.
func (n *Normalizer) Bool(field string, v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}

	s, ok := Text(v)
	if !ok {
		return false
	}

	key := strings.ToLower(fold(s))
	if _, ok := truthy[key]; ok {
		return true
	}

	if key != "" && key != "false" && key != "no" && key != "0" {
		n.logger.Debug("unrecognized boolean phrase, defaulting to false",
			zap.String("field", field),
			zap.String("input", s),
		)
	}
	return false
}

// Int returns the first run of digits. Thousands separators are ignored.
// Negative, non-finite and out-of-range values yield nil.
func (n *Normalizer) Int(v any) *int {
	switch val := v.(type) {
	case nil, bool:
		return nil
	case float64:
		if math.IsNaN(val) || val < 0 || val > maxInt {
			return nil
		}
		i := int(val)
		return &i
	case int:
		if val < 0 || val > maxInt {
			return nil
		}
		return &val
	}

	s, ok := Text(v)
	if !ok {
		return nil
	}

	s = thousandsRe.ReplaceAllString(fold(s), "$1$2")
	loc := digitRunRe.FindStringIndex(s)
	if loc == nil {
		return nil
	}
	if strings.HasSuffix(s[:loc[0]], "-") || strings.HasSuffix(s[:loc[0]], "−") {
		return nil
	}

	i, err := strconv.Atoi(s[loc[0]:loc[1]])
	if err != nil || i > maxInt {
		return nil
	}
	return &i
}

// Digits keeps only the digits of v, preserving a leading plus sign.
func (n *Normalizer) Digits(v any) *string {
	s, ok := Text(v)
	if !ok {
		return nil
	}
	s = fold(s)

	var b strings.Builder
	if strings.HasPrefix(s, "+") {
		b.WriteByte('+')
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	out := b.String()
	if strings.TrimPrefix(out, "+") == "" {
		return nil
	}
	return &out
}

// Email accepts values that look like an address.
func (n *Normalizer) Email(v any) *string {
	s, ok := Text(v)
	if !ok {
		return nil
	}
	s = fold(s)

	at := strings.Index(s, "@")
	if at <= 0 || !strings.Contains(s[at:], ".") {
		return nil
	}
	return &s
}

// Date returns YYYY-MM-DD or nil when v cannot be read as a date.
func (n *Normalizer) Date(v any) *string {
	s, ok := Text(v)
	if !ok {
		return nil
	}
	s = fold(s)
	if s == "" {
		return nil
	}

	lower := strings.ToLower(s)
	for _, phrase := range immediatePhrases {
		if strings.Contains(lower, phrase) {
			today := n.Today()
			return &today
		}
	}

	if isoDateRe.MatchString(s) {
		if _, err := time.Parse(dateLayout, s); err != nil {
			return nil
		}
		return &s
	}

	if m := japaneseDateRe.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3])
	}

	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3])
	}

	return nil
}

func buildDate(year, month, day string) *string {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d := 1
	if day != "" {
		d, _ = strconv.Atoi(day)
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return nil
	}

	out := t.Format(dateLayout)
	return &out
}

// Year reads a calendar year from a Japanese era year (平成30年, H30, 令和元年),
// a 4-digit year, a 2-digit year or a spreadsheet serial date.
func (n *Normalizer) Year(v any) *string {
	if f, ok := v.(float64); ok && f > 1900*12 {
		year := strconv.Itoa(excelEpoch.AddDate(0, 0, int(f)).Year())
		return &year
	}

	s, ok := Text(v)
	if !ok {
		return nil
	}
	s = fold(s)

	if m := eraYearRe.FindStringSubmatch(s); m != nil {
		era := strings.TrimSuffix(strings.ToLower(m[1]), ".")
		num := 1
		if m[2] != "元" {
			num, _ = strconv.Atoi(m[2])
		}
		out := strconv.Itoa(eraOffsets[era] + num)
		return &out
	}

	if y := fourDigitYearRe.FindString(s); y != "" {
		return &y
	}

	if run := digitRunRe.FindString(s); len(run) == 2 {
		yy, _ := strconv.Atoi(run)
		year := 1900 + yy
		if yy < 50 {
			year = 2000 + yy
		}
		out := strconv.Itoa(year)
		return &out
	}

	if serial, err := strconv.Atoi(s); err == nil && serial > 1900*12 {
		year := strconv.Itoa(excelEpoch.AddDate(0, 0, serial).Year())
		return &year
	}

	return nil
}
