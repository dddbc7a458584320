package analyses

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedResult is returned when an upstream payload is not a JSON object.
var ErrMalformedResult = errors.New("malformed analysis result")

// Shape names the upstream payload family.
type Shape string

const (
	ShapeLegacy     Shape = "legacy"
	ShapeEnterprise Shape = "enterprise"
	ShapeHybrid     Shape = "hybrid"
)

// LegacyResult is the original flat report.
type LegacyResult struct {
	Score       float64
	Breakdown   Breakdown
	Keywords    KeywordSets
	Suggestions []Suggestion
	Summary     string
	Evaluation  json.RawMessage
}

// KeywordMatch is one keyword of a tiered enterprise report.
type KeywordMatch struct {
	Keyword   string
	MatchType string
	Evidence  string
	Points    float64
}

// EnterpriseGap is a missing requirement reported by the tiered scorer.
type EnterpriseGap struct {
	MissingSkill   string
	Impact         string
	Recommendation string
}

// EnterpriseResult is the tiered keyword report.
type EnterpriseResult struct {
	Score          float64
	Tier1Critical  []KeywordMatch
	Tier2Important []KeywordMatch
	Tier3Bonus     []KeywordMatch
	TotalEarned    float64
	TotalPossible  float64
	CriticalGaps   []EnterpriseGap
	Summary        string
}

// Dimension is one scored axis of a hybrid report.
type Dimension struct {
	Score float64
	Label string
}

// HybridGap is a missing critical skill in a hybrid report.
type HybridGap struct {
	Skill      string
	Tier       int
	Suggestion string
}

// QuickWin is an optimization step with an upstream priority type.
type QuickWin struct {
	Type        string
	Title       string
	Description string
}

// HybridResult is the multi-dimensional report.
type HybridResult struct {
	Score           float64
	ScoringMethod   string
	KeywordPresence *Dimension
	ResumeQuality   *Dimension
	JobAlignment    *Dimension
	Present         []string
	Missing         []string
	// Compat lists from the results object, merged into Present/Missing.
	CompatPresent []string
	CompatMissing []string
	QuickWins     []QuickWin
	CriticalGaps  []HybridGap
	Evaluation    json.RawMessage
	Summary       string
}

// Variant is a decoded payload tagged with its shape. Exactly one of the
// pointers matches Shape.
type Variant struct {
	Shape      Shape
	Legacy     *LegacyResult
	Enterprise *EnterpriseResult
	Hybrid     *HybridResult
}

// DetectShape inspects the payload structure. The scoring service sends no
// version tag, so the order matters: legacy, then hybrid, then enterprise.
func DetectShape(doc gjson.Result) Shape {
	switch {
	case doc.Get("score_breakdown").Exists() && doc.Get("keywords").Exists():
		return ShapeLegacy
	case doc.Get("dimensions").Exists() || doc.Get("scoring_method").Exists():
		return ShapeHybrid
	default:
		return ShapeEnterprise
	}
}

// Decode turns raw upstream bytes into a tagged variant. Only a payload that
// is not a JSON object is rejected; missing or mistyped fields read as zero.
func Decode(raw []byte) (Variant, error) {
	if !gjson.ValidBytes(raw) {
		return Variant{}, ErrMalformedResult
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Variant{}, ErrMalformedResult
	}
	shape := DetectShape(doc)
	switch shape {
	case ShapeLegacy:
		return Variant{Shape: shape, Legacy: decodeLegacy(doc)}, nil
	case ShapeHybrid:
		return Variant{Shape: shape, Hybrid: decodeHybrid(doc)}, nil
	default:
		return Variant{Shape: shape, Enterprise: decodeEnterprise(doc)}, nil
	}
}

func decodeLegacy(doc gjson.Result) *LegacyResult {
	out := &LegacyResult{
		Score: doc.Get("score").Float(),
		Breakdown: Breakdown{
			Keywords: doc.Get("score_breakdown.keywords").Float(),
			Semantic: doc.Get("score_breakdown.semantic").Float(),
			Tone:     doc.Get("score_breakdown.tone").Float(),
		},
		Keywords: KeywordSets{
			Missing: stringList(doc.Get("keywords.missing")),
			Present: stringList(doc.Get("keywords.present")),
		},
		Summary:    doc.Get("summary").String(),
		Evaluation: rawObject(doc.Get("evaluation")),
	}
	for _, item := range arrayItems(doc.Get("suggestions")) {
		out.Suggestions = append(out.Suggestions, Suggestion{
			Type:        SuggestionType(item.Get("type").String()),
			Title:       item.Get("title").String(),
			Description: item.Get("description").String(),
		})
	}
	return out
}

func decodeEnterprise(doc gjson.Result) *EnterpriseResult {
	out := &EnterpriseResult{
		Score:          doc.Get("score").Float(),
		Tier1Critical:  keywordMatches(doc.Get("keyword_analysis.tier1_critical")),
		Tier2Important: keywordMatches(doc.Get("keyword_analysis.tier2_important")),
		Tier3Bonus:     keywordMatches(doc.Get("keyword_analysis.tier3_bonus")),
		TotalEarned:    doc.Get("points_summary.total_earned").Float(),
		TotalPossible:  doc.Get("points_summary.total_possible").Float(),
		Summary:        doc.Get("summary").String(),
	}
	for _, item := range arrayItems(doc.Get("critical_gaps")) {
		out.CriticalGaps = append(out.CriticalGaps, EnterpriseGap{
			MissingSkill:   item.Get("missing_skill").String(),
			Impact:         item.Get("impact").String(),
			Recommendation: item.Get("recommendation").String(),
		})
	}
	return out
}

func decodeHybrid(doc gjson.Result) *HybridResult {
	out := &HybridResult{
		Score:           doc.Get("score").Float(),
		ScoringMethod:   doc.Get("scoring_method").String(),
		KeywordPresence: dimension(doc.Get("dimensions.keyword_presence")),
		ResumeQuality:   dimension(doc.Get("dimensions.resume_quality")),
		JobAlignment:    dimension(doc.Get("dimensions.job_alignment")),
		Present:         keywordEntries(doc.Get("keyword_analysis.present")),
		Missing:         keywordEntries(doc.Get("keyword_analysis.missing")),
		CompatPresent:   stringList(doc.Get("results.presentKeywords")),
		CompatMissing:   stringList(doc.Get("results.missingKeywords")),
		Evaluation:      rawObject(doc.Get("evaluation")),
		Summary:         doc.Get("summary").String(),
	}
	for _, item := range arrayItems(doc.Get("quick_wins")) {
		out.QuickWins = append(out.QuickWins, QuickWin{
			Type:        item.Get("type").String(),
			Title:       item.Get("title").String(),
			Description: item.Get("description").String(),
		})
	}
	for _, item := range arrayItems(doc.Get("critical_gaps")) {
		skill := item.Get("skill").String()
		if skill == "" {
			skill = item.Get("missing_skill").String()
		}
		out.CriticalGaps = append(out.CriticalGaps, HybridGap{
			Skill:      skill,
			Tier:       int(item.Get("tier").Int()),
			Suggestion: item.Get("suggestion").String(),
		})
	}
	return out
}

func arrayItems(r gjson.Result) []gjson.Result {
	if !r.IsArray() {
		return nil
	}
	return r.Array()
}

func stringList(r gjson.Result) []string {
	var out []string
	for _, item := range arrayItems(r) {
		if item.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// keywordEntries accepts bare strings and objects carrying a keyword field.
func keywordEntries(r gjson.Result) []string {
	var out []string
	for _, item := range arrayItems(r) {
		var s string
		switch {
		case item.Type == gjson.String:
			s = item.String()
		case item.IsObject():
			s = item.Get("keyword").String()
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func keywordMatches(r gjson.Result) []KeywordMatch {
	var out []KeywordMatch
	for _, item := range arrayItems(r) {
		if !item.IsObject() {
			continue
		}
		out = append(out, KeywordMatch{
			Keyword:   strings.TrimSpace(item.Get("keyword").String()),
			MatchType: item.Get("match_type").String(),
			Evidence:  item.Get("evidence").String(),
			Points:    item.Get("points").Float(),
		})
	}
	return out
}

func dimension(r gjson.Result) *Dimension {
	switch {
	case r.IsObject():
		score := r.Get("score")
		if !score.Exists() {
			return nil
		}
		return &Dimension{Score: score.Float(), Label: r.Get("label").String()}
	case r.Type == gjson.Number:
		return &Dimension{Score: r.Float()}
	default:
		return nil
	}
}

func rawObject(r gjson.Result) json.RawMessage {
	if !r.IsObject() {
		return nil
	}
	return json.RawMessage(r.Raw)
}
