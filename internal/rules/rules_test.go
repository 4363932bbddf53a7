package rules

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestDefaultRulesAreValid(t *testing.T) {
	t.Parallel()

	r, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.Validate(); err != nil {
		t.Fatalf("built-in rules invalid: %v", err)
	}

	if len(r.Structure.Engineer.Ultra) != 12 || len(r.Structure.Project.Ultra) != 10 {
		t.Fatalf("unexpected ultra pattern counts: %d/%d", len(r.Structure.Engineer.Ultra), len(r.Structure.Project.Ultra))
	}

	if r.Keywords.Weights.Top != 25 || r.Spam.Threshold != 2 || r.Excerpt.MaxLength != 2000 {
		t.Fatalf("unexpected defaults: %+v %+v %+v", r.Keywords.Weights, r.Spam, r.Excerpt.MaxLength)
	}
}

func TestFieldMatching(t *testing.T) {
	t.Parallel()

	field, err := NewField("氏[^】：:]{0,3}名")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		text string
		want int
	}{
		{text: "【氏名】山田 太郎", want: 1},
		{text: "・氏名：Y.T", want: 1},
		{text: "  氏 名 : 山田", want: 1},
		{text: "ご氏名をお知らせください", want: 0},
		{text: "【氏名】\n山田", want: 1},
	}

	for _, tt := range tests {
		if got := field.Count(tt.text); got != tt.want {
			t.Fatalf("%q: expected %d, got %d", tt.text, tt.want, got)
		}
	}
}

func mustPattern(expr string) Pattern {
	return Pattern{Expr: expr, re: regexp.MustCompile(expr)}
}

func TestPatternCount(t *testing.T) {
	t.Parallel()

	p := mustPattern("【氏.{0,3}名】")
	if got := p.Count("【氏名】A\n【氏名】B"); got != 2 {
		t.Fatalf("expected 2 matches, got %d", got)
	}

	var empty Pattern
	if empty.Count("anything") != 0 || empty.MatchString("anything") {
		t.Fatalf("zero pattern must never match")
	}
}

func TestLoadOverridesAndValidates(t *testing.T) {
	dir := t.TempDir()

	override := filepath.Join(dir, "rules.yaml")
	content := "spam:\n  threshold: 3\n  keywords: [メルマガ]\ndecision:\n  margin: 8\n"
	if err := os.WriteFile(override, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := Load(override)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Spam.Threshold != 3 || len(r.Spam.Keywords) != 1 || r.Spam.Keywords[0] != "メルマガ" {
		t.Fatalf("spam rules not overridden: %+v", r.Spam)
	}
	if r.Decision.Margin != 8 || r.Decision.Floor != 10 {
		t.Fatalf("decision not merged: %+v", r.Decision)
	}
	if len(r.Keywords.Project.Top) == 0 {
		t.Fatalf("untouched sections must keep built-in values")
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("attachments:\n  resume: [\"(unclosed\"]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(broken); err == nil || !strings.Contains(err.Error(), "compile pattern") {
		t.Fatalf("expected compile error, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("excerpt:\n  max_length: 100\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(invalid); err == nil {
		t.Fatalf("expected validation error")
	}
}
