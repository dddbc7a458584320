package analyses

import "encoding/json"

const (
	maxKeywords    = 10
	defaultSummary = "Analysis completed."
)

// SuggestionType ranks a suggestion for display.
type SuggestionType string

const (
	SuggestionCritical SuggestionType = "critical"
	SuggestionWarning  SuggestionType = "warning"
	SuggestionTip      SuggestionType = "tip"
)

// Suggestion is one actionable improvement.
type Suggestion struct {
	Type        SuggestionType `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
}

// Breakdown holds the three sub-scores, each in [0,100].
type Breakdown struct {
	Keywords float64 `json:"keywords"`
	Semantic float64 `json:"semantic"`
	Tone     float64 `json:"tone"`
}

// KeywordSets lists matched and missing keywords, at most ten each.
type KeywordSets struct {
	Missing []string `json:"missing"`
	Present []string `json:"present"`
}

// DisplayResult is the canonical report every upstream shape is reduced to.
type DisplayResult struct {
	Score       float64      `json:"score"`
	Breakdown   Breakdown    `json:"breakdown"`
	Keywords    KeywordSets  `json:"keywords"`
	Suggestions []Suggestion `json:"suggestions"`
	Summary     string       `json:"summary"`
	// Evaluation is the upstream verdict object, copied byte for byte.
	Evaluation json.RawMessage `json:"evaluation,omitempty"`
}

// DefaultResult is what an unreadable payload degrades to.
func DefaultResult() DisplayResult {
	return DisplayResult{
		Keywords:    KeywordSets{Missing: []string{}, Present: []string{}},
		Suggestions: []Suggestion{},
		Summary:     defaultSummary,
	}
}

func parseSuggestionType(raw string) SuggestionType {
	switch SuggestionType(raw) {
	case SuggestionCritical, SuggestionWarning, SuggestionTip:
		return SuggestionType(raw)
	default:
		return SuggestionTip
	}
}

func clampScore(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func capKeywords(values []string) []string {
	if values == nil {
		return []string{}
	}
	if len(values) > maxKeywords {
		return values[:maxKeywords]
	}
	return values
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
