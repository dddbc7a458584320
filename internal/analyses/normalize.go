package analyses

import (
	"fmt"
	"math"
	"strings"

	"resume-tailor/internal/shared/metrics"
	"resume-tailor/internal/shared/telemetry"
)

const defaultDimensionScore = 50

// Enterprise reports carry no semantic or tone axis; these fill the gap.
const (
	enterpriseSemanticScore = 75
	enterpriseToneScore     = 80
)

// Transform decodes and normalizes an upstream payload. An unreadable payload
// yields DefaultResult rather than an error.
func Transform(raw []byte) DisplayResult {
	_, out, _ := decodeAndNormalize(raw)
	return out
}

func decodeAndNormalize(raw []byte) (Shape, DisplayResult, error) {
	v, err := Decode(raw)
	if err != nil {
		telemetry.Warn("analysis.result_malformed", map[string]any{
			"bytes": len(raw),
			"error": err.Error(),
		})
		metrics.IncResultShape("malformed")
		return "", DefaultResult(), err
	}
	metrics.IncResultShape(string(v.Shape))
	out := Normalize(v)
	telemetry.Logger().Debug().
		Str("shape", string(v.Shape)).
		Float64("score", out.Score).
		Int("suggestions", len(out.Suggestions)).
		Msg("analysis.result_normalized")
	checkEvaluation(out)
	return v.Shape, out, nil
}

func checkEvaluation(out DisplayResult) {
	if len(out.Evaluation) == 0 {
		return
	}
	ev, err := ParseEvaluation(out.Evaluation)
	if err != nil {
		telemetry.Warn("analysis.evaluation_invalid", map[string]any{"error": err.Error()})
	}
	if !ev.Consistent() {
		metrics.IncEvaluationInconsistent()
		telemetry.Warn("analysis.evaluation_inconsistent", map[string]any{
			"hiring_status": ev.Hiring.Status,
			"ats_status":    ev.ATS.Status,
		})
	}
}

// Normalize reduces a decoded variant to the display shape. It never fails.
func Normalize(v Variant) DisplayResult {
	var out DisplayResult
	switch {
	case v.Shape == ShapeLegacy && v.Legacy != nil:
		out = normalizeLegacy(*v.Legacy)
	case v.Shape == ShapeHybrid && v.Hybrid != nil:
		out = normalizeHybrid(*v.Hybrid)
	case v.Shape == ShapeEnterprise && v.Enterprise != nil:
		out = normalizeEnterprise(*v.Enterprise)
	default:
		return DefaultResult()
	}
	out.Score = clampScore(out.Score)
	out.Breakdown = Breakdown{
		Keywords: clampScore(out.Breakdown.Keywords),
		Semantic: clampScore(out.Breakdown.Semantic),
		Tone:     clampScore(out.Breakdown.Tone),
	}
	out.Keywords.Missing = capKeywords(out.Keywords.Missing)
	out.Keywords.Present = capKeywords(out.Keywords.Present)
	if out.Suggestions == nil {
		out.Suggestions = []Suggestion{}
	}
	out.Summary = fallbackString(strings.TrimSpace(out.Summary), defaultSummary)
	return out
}

func normalizeLegacy(r LegacyResult) DisplayResult {
	suggestions := make([]Suggestion, 0, len(r.Suggestions))
	for _, s := range r.Suggestions {
		s.Type = parseSuggestionType(string(s.Type))
		suggestions = append(suggestions, s)
	}
	return DisplayResult{
		Score:       r.Score,
		Breakdown:   r.Breakdown,
		Keywords:    r.Keywords,
		Suggestions: suggestions,
		Summary:     r.Summary,
		Evaluation:  r.Evaluation,
	}
}

func normalizeHybrid(r HybridResult) DisplayResult {
	suggestions := make([]Suggestion, 0, len(r.QuickWins)+len(r.CriticalGaps))
	for _, win := range r.QuickWins {
		suggestions = append(suggestions, Suggestion{
			Type:        quickWinType(win.Type),
			Title:       win.Title,
			Description: win.Description,
		})
	}
	for _, gap := range r.CriticalGaps {
		if gap.Skill == "" {
			continue
		}
		title := "Add Critical Skill: " + gap.Skill
		if titleCovered(suggestions, title) {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Type:        SuggestionCritical,
			Title:       title,
			Description: fallbackString(gap.Suggestion, fmt.Sprintf("Add %q with specific examples and measurable outcomes", gap.Skill)),
		})
	}

	return DisplayResult{
		Score: r.Score,
		Breakdown: Breakdown{
			Keywords: dimensionScore(r.KeywordPresence),
			Semantic: dimensionScore(r.JobAlignment),
			Tone:     dimensionScore(r.ResumeQuality),
		},
		Keywords: KeywordSets{
			Missing: mergeUnique(r.Missing, r.CompatMissing),
			Present: mergeUnique(r.Present, r.CompatPresent),
		},
		Suggestions: suggestions,
		Summary:     r.Summary,
		Evaluation:  r.Evaluation,
	}
}

func normalizeEnterprise(r EnterpriseResult) DisplayResult {
	var present, missing []string
	// tier3 bonus keywords never count as missing.
	for _, tier := range [][]KeywordMatch{r.Tier1Critical, r.Tier2Important} {
		for _, kw := range tier {
			if kw.Keyword == "" {
				continue
			}
			if kw.MatchType == "NONE" {
				missing = append(missing, kw.Keyword)
			} else {
				present = append(present, kw.Keyword)
			}
		}
	}

	var keywordScore float64
	if r.TotalPossible > 0 {
		keywordScore = math.Round(100 * r.TotalEarned / r.TotalPossible)
	}

	suggestions := make([]Suggestion, 0, len(r.CriticalGaps))
	for _, gap := range r.CriticalGaps {
		typ := SuggestionWarning
		if gap.Impact == "HIGH" {
			typ = SuggestionCritical
		}
		suggestions = append(suggestions, Suggestion{
			Type:        typ,
			Title:       gap.MissingSkill,
			Description: gap.Recommendation,
		})
	}

	return DisplayResult{
		Score: r.Score,
		Breakdown: Breakdown{
			Keywords: keywordScore,
			Semantic: enterpriseSemanticScore,
			Tone:     enterpriseToneScore,
		},
		Keywords:    KeywordSets{Missing: missing, Present: present},
		Suggestions: suggestions,
		Summary:     r.Summary,
	}
}

func quickWinType(raw string) SuggestionType {
	switch raw {
	case "critical":
		return SuggestionCritical
	case "high":
		return SuggestionWarning
	default:
		return SuggestionTip
	}
}

func titleCovered(suggestions []Suggestion, title string) bool {
	needle := strings.ToLower(title)
	for _, s := range suggestions {
		if strings.Contains(strings.ToLower(s.Title), needle) {
			return true
		}
	}
	return false
}

func dimensionScore(d *Dimension) float64 {
	if d == nil {
		return defaultDimensionScore
	}
	return d.Score
}

// mergeUnique appends extra to base, skipping case-insensitive duplicates.
func mergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			key := strings.ToLower(s)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
