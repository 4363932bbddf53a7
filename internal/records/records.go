// Package records holds the structured outputs of extraction and builds them
// from the loosely typed maps returned by AI providers.
package records

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/normalize"
)

const (
	SentinelUnspecified = "unspecified"
	SentinelUnknown     = "unknown"

	DefaultInterviewCount = "1"
	DefaultMaxCandidates  = 5
)

var ErrEmptyRecord = errors.New("empty record")

type ProjectRecord struct {
	Title               string                   `json:"title"`
	ClientCompany       *string                  `json:"client_company"`
	PartnerCompany      *string                  `json:"partner_company"`
	Description         *string                  `json:"description"`
	DetailDescription   *string                  `json:"detail_description"`
	Skills              []string                 `json:"skills"`
	KeyTechnologies     *string                  `json:"key_technologies"`
	Location            *string                  `json:"location"`
	WorkType            *string                  `json:"work_type"`
	StartDate           string                   `json:"start_date"`
	Duration            *string                  `json:"duration"`
	ApplicationDeadline *string                  `json:"application_deadline"`
	Budget              *string                  `json:"budget"`
	DesiredBudget       *string                  `json:"desired_budget"`
	JapaneseLevel       *normalize.LanguageLevel `json:"japanese_level"`
	Experience          *string                  `json:"experience"`
	ForeignerAccepted   bool                     `json:"foreigner_accepted"`
	FreelancerAccepted  bool                     `json:"freelancer_accepted"`
	InterviewCount      string                   `json:"interview_count"`
	Processes           []string                 `json:"processes"`
	MaxCandidates       int                      `json:"max_candidates"`
	ManagerName         *string                  `json:"manager_name"`
	ManagerEmail        *string                  `json:"manager_email"`
}

type EngineerRecord struct {
	Name                  string                   `json:"name"`
	Email                 *string                  `json:"email"`
	Phone                 *string                  `json:"phone"`
	Gender                *normalize.Gender        `json:"gender"`
	Age                   *int                     `json:"age"`
	Nationality           *string                  `json:"nationality"`
	NearestStation        *string                  `json:"nearest_station"`
	Education             *string                  `json:"education"`
	ArrivalYearJapan      *string                  `json:"arrival_year_japan"`
	Certifications        []string                 `json:"certifications"`
	Skills                []string                 `json:"skills"`
	TechnicalKeywords     []string                 `json:"technical_keywords"`
	Experience            string                   `json:"experience"`
	WorkScope             *string                  `json:"work_scope"`
	WorkExperience        *string                  `json:"work_experience"`
	JapaneseLevel         *normalize.LanguageLevel `json:"japanese_level"`
	EnglishLevel          *normalize.LanguageLevel `json:"english_level"`
	Availability          *string                  `json:"availability"`
	CurrentStatus         normalize.Status         `json:"current_status"`
	PreferredWorkStyle    []string                 `json:"preferred_work_style"`
	PreferredLocations    []string                 `json:"preferred_locations"`
	DesiredRateMin        *int                     `json:"desired_rate_min"`
	DesiredRateMax        *int                     `json:"desired_rate_max"`
	OvertimeAvailable     bool                     `json:"overtime_available"`
	BusinessTripAvailable bool                     `json:"business_trip_available"`
	SelfPromotion         *string                  `json:"self_promotion"`
	Remarks               *string                  `json:"remarks"`
	Recommendation        *string                  `json:"recommendation"`
	SourceFilename        *string                  `json:"source_filename"`
}

// rawProject mirrors ProjectRecord with untyped fields so that any model
// output can be decoded before normalization.
type rawProject struct {
	Title               any `mapstructure:"title"`
	ClientCompany       any `mapstructure:"client_company"`
	PartnerCompany      any `mapstructure:"partner_company"`
	Description         any `mapstructure:"description"`
	DetailDescription   any `mapstructure:"detail_description"`
	Skills              any `mapstructure:"skills"`
	KeyTechnologies     any `mapstructure:"key_technologies"`
	Location            any `mapstructure:"location"`
	WorkType            any `mapstructure:"work_type"`
	StartDate           any `mapstructure:"start_date"`
	Duration            any `mapstructure:"duration"`
	ApplicationDeadline any `mapstructure:"application_deadline"`
	Budget              any `mapstructure:"budget"`
	DesiredBudget       any `mapstructure:"desired_budget"`
	JapaneseLevel       any `mapstructure:"japanese_level"`
	Experience          any `mapstructure:"experience"`
	ForeignerAccepted   any `mapstructure:"foreigner_accepted"`
	FreelancerAccepted  any `mapstructure:"freelancer_accepted"`
	InterviewCount      any `mapstructure:"interview_count"`
	Processes           any `mapstructure:"processes"`
	MaxCandidates       any `mapstructure:"max_candidates"`
	ManagerName         any `mapstructure:"manager_name"`
	ManagerEmail        any `mapstructure:"manager_email"`
}

type rawEngineer struct {
	Name                  any `mapstructure:"name"`
	Email                 any `mapstructure:"email"`
	Phone                 any `mapstructure:"phone"`
	Gender                any `mapstructure:"gender"`
	Age                   any `mapstructure:"age"`
	Nationality           any `mapstructure:"nationality"`
	NearestStation        any `mapstructure:"nearest_station"`
	Education             any `mapstructure:"education"`
	ArrivalYearJapan      any `mapstructure:"arrival_year_japan"`
	Certifications        any `mapstructure:"certifications"`
	Skills                any `mapstructure:"skills"`
	TechnicalKeywords     any `mapstructure:"technical_keywords"`
	Experience            any `mapstructure:"experience"`
	WorkScope             any `mapstructure:"work_scope"`
	WorkExperience        any `mapstructure:"work_experience"`
	JapaneseLevel         any `mapstructure:"japanese_level"`
	EnglishLevel          any `mapstructure:"english_level"`
	Availability          any `mapstructure:"availability"`
	CurrentStatus         any `mapstructure:"current_status"`
	PreferredWorkStyle    any `mapstructure:"preferred_work_style"`
	PreferredLocations    any `mapstructure:"preferred_locations"`
	DesiredRateMin        any `mapstructure:"desired_rate_min"`
	DesiredRateMax        any `mapstructure:"desired_rate_max"`
	OvertimeAvailable     any `mapstructure:"overtime_available"`
	BusinessTripAvailable any `mapstructure:"business_trip_available"`
	SelfPromotion         any `mapstructure:"self_promotion"`
	Remarks               any `mapstructure:"remarks"`
	Recommendation        any `mapstructure:"recommendation"`
	SourceFilename        any `mapstructure:"source_filename"`
}

// Builder turns raw maps into records.
type Builder struct {
	normalizer *normalize.Normalizer
	logger     *zap.Logger
}

func NewBuilder(n *normalize.Normalizer, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n == nil {
		n = normalize.New(logger)
	}
	return &Builder{normalizer: n, logger: logger}
}

func (b *Builder) Project(raw map[string]any) (*ProjectRecord, error) {
	var r rawProject
	if err := b.decode(raw, &r); err != nil {
		return nil, err
	}

	n := b.normalizer
	p := &ProjectRecord{
		Title:               n.RequiredString("title", r.Title, SentinelUnspecified),
		ClientCompany:       n.String(r.ClientCompany),
		PartnerCompany:      n.String(r.PartnerCompany),
		Description:         n.String(r.Description),
		DetailDescription:   n.String(r.DetailDescription),
		Skills:              n.List(r.Skills),
		KeyTechnologies:     n.String(r.KeyTechnologies),
		Location:            n.String(r.Location),
		WorkType:            n.String(r.WorkType),
		Duration:            n.String(r.Duration),
		ApplicationDeadline: n.Date(r.ApplicationDeadline),
		Budget:              n.String(r.Budget),
		DesiredBudget:       n.String(r.DesiredBudget),
		JapaneseLevel:       n.LanguageLevel("japanese_level", r.JapaneseLevel),
		Experience:          n.String(r.Experience),
		ForeignerAccepted:   n.Bool("foreigner_accepted", r.ForeignerAccepted),
		FreelancerAccepted:  n.Bool("freelancer_accepted", r.FreelancerAccepted),
		InterviewCount:      DefaultInterviewCount,
		Processes:           n.List(r.Processes),
		MaxCandidates:       DefaultMaxCandidates,
		ManagerName:         n.String(r.ManagerName),
		ManagerEmail:        n.Email(r.ManagerEmail),
	}

	if start := n.Date(r.StartDate); start != nil {
		p.StartDate = *start
	} else {
		p.StartDate = n.Today()
	}

	if count := n.Int(r.InterviewCount); count != nil && *count > 0 {
		p.InterviewCount = strconv.Itoa(*count)
	}

	if maxCandidates := n.Int(r.MaxCandidates); maxCandidates != nil && *maxCandidates > 0 {
		p.MaxCandidates = *maxCandidates
	}

	return p, nil
}

func (b *Builder) Engineer(raw map[string]any) (*EngineerRecord, error) {
	var r rawEngineer
	if err := b.decode(raw, &r); err != nil {
		return nil, err
	}

	n := b.normalizer
	e := &EngineerRecord{
		Name:                  n.RequiredString("name", r.Name, SentinelUnknown),
		Email:                 n.Email(r.Email),
		Phone:                 n.Digits(r.Phone),
		Gender:                n.Gender(r.Gender),
		Age:                   n.Int(r.Age),
		Nationality:           n.String(r.Nationality),
		NearestStation:        n.String(r.NearestStation),
		Education:             n.String(r.Education),
		ArrivalYearJapan:      n.Year(r.ArrivalYearJapan),
		Certifications:        n.List(r.Certifications),
		Skills:                n.List(r.Skills),
		TechnicalKeywords:     n.List(r.TechnicalKeywords),
		Experience:            n.RequiredString("experience", r.Experience, SentinelUnknown),
		WorkScope:             n.String(r.WorkScope),
		WorkExperience:        n.String(r.WorkExperience),
		JapaneseLevel:         n.LanguageLevel("japanese_level", r.JapaneseLevel),
		EnglishLevel:          n.LanguageLevel("english_level", r.EnglishLevel),
		Availability:          n.String(r.Availability),
		CurrentStatus:         n.Status(r.CurrentStatus),
		PreferredWorkStyle:    n.List(r.PreferredWorkStyle),
		PreferredLocations:    n.List(r.PreferredLocations),
		DesiredRateMin:        n.Int(r.DesiredRateMin),
		DesiredRateMax:        n.Int(r.DesiredRateMax),
		OvertimeAvailable:     n.Bool("overtime_available", r.OvertimeAvailable),
		BusinessTripAvailable: n.Bool("business_trip_available", r.BusinessTripAvailable),
		SelfPromotion:         n.String(r.SelfPromotion),
		Remarks:               n.String(r.Remarks),
		Recommendation:        n.String(r.Recommendation),
		SourceFilename:        n.String(r.SourceFilename),
	}

	return e, nil
}

func (b *Builder) decode(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return ErrEmptyRecord
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:   out,
		Metadata: &md,
	})
	if err != nil {
		return fmt.Errorf("create record decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		b.logger.Debug("ignoring unknown record keys", zap.Strings("keys", md.Unused))
	}

	return nil
}
