package records

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/mail-triage/internal/normalize"
)

func newTestBuilder(logger *zap.Logger) *Builder {
	n := normalize.New(logger)
	n.Now = func() time.Time { return time.Date(2024, time.May, 20, 12, 0, 0, 0, time.Local) }
	return NewBuilder(n, logger)
}

func TestProjectDefaults(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(zap.NewNop())
	p, err := b.Project(map[string]any{"title": nil, "budget": "60万円"})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	if p.Title != SentinelUnspecified {
		t.Fatalf("expected sentinel title, got %q", p.Title)
	}
	if p.StartDate != "2024-05-20" {
		t.Fatalf("expected today start date, got %q", p.StartDate)
	}
	if p.InterviewCount != DefaultInterviewCount {
		t.Fatalf("unexpected interview count %q", p.InterviewCount)
	}
	if p.MaxCandidates != DefaultMaxCandidates {
		t.Fatalf("unexpected max candidates %d", p.MaxCandidates)
	}
	if p.Skills == nil || len(p.Skills) != 0 {
		t.Fatalf("expected empty skills, got %v", p.Skills)
	}
	if p.Budget == nil || *p.Budget != "60万円" {
		t.Fatalf("unexpected budget %v", p.Budget)
	}
}

func TestProjectNormalizesFields(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(zap.NewNop())
	p, err := b.Project(map[string]any{
		"Title":                "Java開発",
		"skills":               "Java, Spring",
		"start_date":           "2024年6月",
		"application_deadline": "2024/05/31",
		"japanese_level":       "N2以上",
		"foreigner_accepted":   "可",
		"freelancer_accepted":  false,
		"interview_count":      "2回",
		"max_candidates":       "3名",
		"manager_email":        "sales@example.jp",
	})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	if p.Title != "Java開発" {
		t.Fatalf("expected case-insensitive key match, got %q", p.Title)
	}
	if len(p.Skills) != 2 || p.Skills[1] != "Spring" {
		t.Fatalf("unexpected skills %v", p.Skills)
	}
	if p.StartDate != "2024-06-01" {
		t.Fatalf("unexpected start date %q", p.StartDate)
	}
	if p.ApplicationDeadline == nil || *p.ApplicationDeadline != "2024-05-31" {
		t.Fatalf("unexpected deadline %v", p.ApplicationDeadline)
	}
	if p.JapaneseLevel == nil || *p.JapaneseLevel != normalize.LanguageBusiness {
		t.Fatalf("unexpected japanese level %v", p.JapaneseLevel)
	}
	if !p.ForeignerAccepted || p.FreelancerAccepted {
		t.Fatalf("unexpected acceptance flags %v/%v", p.ForeignerAccepted, p.FreelancerAccepted)
	}
	if p.InterviewCount != "2" || p.MaxCandidates != 3 {
		t.Fatalf("unexpected counts %q/%d", p.InterviewCount, p.MaxCandidates)
	}
}

func TestEngineerNormalizesFields(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(zap.NewNop())
	e, err := b.Engineer(map[string]any{
		"name":               "T.Y",
		"gender":             "F",
		"age":                "29歳",
		"phone":              "090-1111-2222",
		"arrival_year_japan": "2016年",
		"skills":             []any{"Go", "AWS"},
		"japanese_level":     "ネイティブ",
		"english_level":      nil,
		"current_status":     "面談",
		"desired_rate_min":   "48万円",
		"desired_rate_max":   55.0,
		"overtime_available": "はい",
	})
	if err != nil {
		t.Fatalf("Engineer: %v", err)
	}

	if e.Gender == nil || *e.Gender != normalize.GenderFemale {
		t.Fatalf("unexpected gender %v", e.Gender)
	}
	if e.Age == nil || *e.Age != 29 {
		t.Fatalf("unexpected age %v", e.Age)
	}
	if e.Phone == nil || *e.Phone != "09011112222" {
		t.Fatalf("unexpected phone %v", e.Phone)
	}
	if e.ArrivalYearJapan == nil || *e.ArrivalYearJapan != "2016" {
		t.Fatalf("unexpected arrival year %v", e.ArrivalYearJapan)
	}
	if e.DesiredRateMin == nil || *e.DesiredRateMin != 48 {
		t.Fatalf("unexpected desired_rate_min %v", e.DesiredRateMin)
	}
	if e.DesiredRateMax == nil || *e.DesiredRateMax != 55 {
		t.Fatalf("unexpected desired_rate_max %v", e.DesiredRateMax)
	}
	if e.Experience != SentinelUnknown {
		t.Fatalf("expected experience sentinel, got %q", e.Experience)
	}
	if e.EnglishLevel != nil {
		t.Fatalf("expected nil english level, got %v", *e.EnglishLevel)
	}
	if e.CurrentStatus != normalize.StatusInterview {
		t.Fatalf("unexpected status %q", e.CurrentStatus)
	}
	if !e.OvertimeAvailable || e.BusinessTripAvailable {
		t.Fatalf("unexpected availability flags")
	}
	if e.Certifications == nil {
		t.Fatalf("expected empty certifications slice")
	}
}

func TestEngineerMissingNameUsesSentinel(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(zap.NewNop())
	e, err := b.Engineer(map[string]any{"name": "   ", "experience": 7.0})
	if err != nil {
		t.Fatalf("Engineer: %v", err)
	}
	if e.Name != SentinelUnknown {
		t.Fatalf("expected name sentinel, got %q", e.Name)
	}
	if e.Experience != "7" {
		t.Fatalf("unexpected experience %q", e.Experience)
	}
	if e.CurrentStatus != normalize.StatusProposing {
		t.Fatalf("unexpected default status %q", e.CurrentStatus)
	}
}

func TestEmptyRecord(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(zap.NewNop())
	if _, err := b.Project(nil); !errors.Is(err, ErrEmptyRecord) {
		t.Fatalf("expected ErrEmptyRecord, got %v", err)
	}
	if _, err := b.Engineer(map[string]any{}); !errors.Is(err, ErrEmptyRecord) {
		t.Fatalf("expected ErrEmptyRecord, got %v", err)
	}
}

func TestUnknownKeysAreLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	b := newTestBuilder(zap.New(core))

	if _, err := b.Project(map[string]any{"title": "x", "salary_note": "n/a"}); err != nil {
		t.Fatalf("Project: %v", err)
	}

	entries := logs.FilterMessage("ignoring unknown record keys").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
}

func TestRecordJSONShape(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(zap.NewNop())
	e, err := b.Engineer(map[string]any{"name": "A", "gender": "男性"})
	if err != nil {
		t.Fatalf("Engineer: %v", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, want := range []string{`"gender":"male"`, `"skills":[]`, `"current_status":"proposing"`, `"age":null`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected %s in %s", want, data)
		}
	}
}

func TestRenderFields(t *testing.T) {
	t.Parallel()

	out := Render(EngineerFields)
	if !strings.Contains(out, `- "name" (string, required)`) {
		t.Fatalf("missing required marker:\n%s", out)
	}
	if !strings.Contains(out, "one of: male, female, undisclosed") {
		t.Fatalf("missing allowed values:\n%s", out)
	}

	if !strings.Contains(out, "native (ネイティブレベル)") || !strings.Contains(out, "closed (営業終了)") {
		t.Fatalf("missing enum labels:\n%s", out)
	}

	names := Names(ProjectFields)
	if names[0] != "title" || len(names) != len(ProjectFields) {
		t.Fatalf("unexpected names %v", names)
	}
}
