package records

import (
	"fmt"
	"strings"

	"github.com/spigell/mail-triage/internal/normalize"
)

// FieldSpec describes one schema field to the model.
type FieldSpec struct {
	Name        string
	Type        string
	Description string
	Allowed     []string
	// Labels holds the Japanese wording shown next to allowed values.
	Labels   map[string]string
	Required bool
}

var (
	languageValues, languageLabels = enumOptions(normalize.LanguageLevels, normalize.LanguageLevel.Label)
	statusValues, statusLabels     = enumOptions(normalize.Statuses, normalize.Status.Label)
)

func enumOptions[T ~string](values []T, label func(T) string) ([]string, map[string]string) {
	names := make([]string, 0, len(values))
	labels := make(map[string]string, len(values))
	for _, v := range values {
		names = append(names, string(v))
		labels[string(v)] = label(v)
	}
	return names, labels
}

var ProjectFields = []FieldSpec{
	{Name: "title", Type: "string", Description: "案件名 (project title)", Required: true},
	{Name: "client_company", Type: "string|null", Description: "エンド/クライアント企業名"},
	{Name: "partner_company", Type: "string|null", Description: "パートナー企業名"},
	{Name: "description", Type: "string|null", Description: "案件概要"},
	{Name: "detail_description", Type: "string|null", Description: "詳細説明"},
	{Name: "skills", Type: "string[]", Description: "必須/尚可スキル, [] when none"},
	{Name: "key_technologies", Type: "string|null", Description: "主要技術"},
	{Name: "location", Type: "string|null", Description: "勤務地"},
	{Name: "work_type", Type: "string|null", Description: "勤務形態 (常駐/リモート/ハイブリッド)"},
	{Name: "start_date", Type: "date|null", Description: "開始日 YYYY-MM-DD, today when 即日"},
	{Name: "duration", Type: "string|null", Description: "期間"},
	{Name: "application_deadline", Type: "date|null", Description: "応募締切 YYYY-MM-DD"},
	{Name: "budget", Type: "string|null", Description: "単価/予算"},
	{Name: "desired_budget", Type: "string|null", Description: "希望予算"},
	{Name: "japanese_level", Type: "enum|null", Description: "日本語レベル", Allowed: languageValues, Labels: languageLabels},
	{Name: "experience", Type: "string|null", Description: "必要経験"},
	{Name: "foreigner_accepted", Type: "boolean", Description: "外国籍可"},
	{Name: "freelancer_accepted", Type: "boolean", Description: "個人事業主可"},
	{Name: "interview_count", Type: "string", Description: "面談回数 such as \"1\" or \"2\""},
	{Name: "processes", Type: "string[]", Description: "担当工程 such as 要件定義, 設計"},
	{Name: "max_candidates", Type: "integer", Description: "提案可能人数, default 5"},
	{Name: "manager_name", Type: "string|null", Description: "担当者名"},
	{Name: "manager_email", Type: "string|null", Description: "担当者メールアドレス"},
}

var EngineerFields = []FieldSpec{
	{Name: "name", Type: "string", Description: "技術者名 or initials", Required: true},
	{Name: "email", Type: "string|null", Description: "メールアドレス"},
	{Name: "phone", Type: "string|null", Description: "電話番号"},
	{Name: "gender", Type: "enum|null", Description: "性別", Allowed: []string{"male", "female", "undisclosed"}},
	{Name: "age", Type: "integer|null", Description: "年齢"},
	{Name: "nationality", Type: "string|null", Description: "国籍"},
	{Name: "nearest_station", Type: "string|null", Description: "最寄駅"},
	{Name: "education", Type: "string|null", Description: "最終学歴"},
	{Name: "arrival_year_japan", Type: "string|null", Description: "来日年 YYYY"},
	{Name: "certifications", Type: "string[]", Description: "保有資格"},
	{Name: "skills", Type: "string[]", Description: "スキル"},
	{Name: "technical_keywords", Type: "string[]", Description: "技術キーワード"},
	{Name: "experience", Type: "string", Description: "経験年数 such as 5年", Required: true},
	{Name: "work_scope", Type: "string|null", Description: "対応工程"},
	{Name: "work_experience", Type: "string|null", Description: "職務経歴の要約"},
	{Name: "japanese_level", Type: "enum|null", Description: "日本語レベル (N1 native, N2 business, N3-N5 conversational)", Allowed: languageValues, Labels: languageLabels},
	{Name: "english_level", Type: "enum|null", Description: "英語レベル", Allowed: languageValues, Labels: languageLabels},
	{Name: "availability", Type: "string|null", Description: "稼働開始可能時期"},
	{Name: "current_status", Type: "enum", Description: "営業ステータス", Allowed: statusValues, Labels: statusLabels},
	{Name: "preferred_work_style", Type: "string[]", Description: "希望勤務形態"},
	{Name: "preferred_locations", Type: "string[]", Description: "希望勤務地"},
	{Name: "desired_rate_min", Type: "integer|null", Description: "希望単価下限 (万円)"},
	{Name: "desired_rate_max", Type: "integer|null", Description: "希望単価上限 (万円)"},
	{Name: "overtime_available", Type: "boolean", Description: "残業可"},
	{Name: "business_trip_available", Type: "boolean", Description: "出張可"},
	{Name: "self_promotion", Type: "string|null", Description: "自己PR"},
	{Name: "remarks", Type: "string|null", Description: "備考"},
	{Name: "recommendation", Type: "string|null", Description: "推薦コメント"},
}

// Render lists fields one per line for prompt templates.
func Render(fields []FieldSpec) string {
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "- %q (%s", f.Name, f.Type)
		if f.Required {
			b.WriteString(", required")
		}
		fmt.Fprintf(&b, "): %s", f.Description)
		if len(f.Allowed) > 0 {
			fmt.Fprintf(&b, "; one of: %s", strings.Join(allowed(f), ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func allowed(f FieldSpec) []string {
	out := make([]string, 0, len(f.Allowed))
	for _, v := range f.Allowed {
		if label := f.Labels[v]; label != "" {
			v += " (" + label + ")"
		}
		out = append(out, v)
	}
	return out
}

// Names returns the field names in order.
func Names(fields []FieldSpec) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}
