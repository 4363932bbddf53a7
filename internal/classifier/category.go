// Package classifier decides whether a message concerns a job order, a
// candidate, something else, or nothing of interest.
package classifier

import "strings"

type Category string

const (
	ProjectRelated  Category = "project_related"
	EngineerRelated Category = "engineer_related"
	Other           Category = "other"
	Unclassified    Category = "unclassified"
)

// ParseCategory maps a free-form label onto a category by substring. Engineer
// wins over project when both appear.
func ParseCategory(label string) Category {
	label = strings.ToLower(label)
	switch {
	case strings.Contains(label, "engineer"):
		return EngineerRelated
	case strings.Contains(label, "project"):
		return ProjectRelated
	case strings.Contains(label, "other"):
		return Other
	default:
		return Unclassified
	}
}

// Verdict is the outcome of one classification call.
type Verdict struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Stage      string   `json:"stage"`
	Reason     string   `json:"reason,omitempty"`
	// Provider names the AI provider that answered, when the AI stage decided.
	Provider     string `json:"provider,omitempty"`
	FallbackUsed bool   `json:"fallback_used,omitempty"`
}
