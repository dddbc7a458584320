package analyses

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestTransformLegacyPassThrough(t *testing.T) {
	raw := `{"score":72,"score_breakdown":{"keywords":80,"semantic":60,"tone":75},
		"keywords":{"missing":["SQL"],"present":["Python"]},
		"suggestions":[{"type":"tip","title":"X","description":"Y"}],"summary":"ok"}`

	got := Transform([]byte(raw))
	want := DisplayResult{
		Score:       72,
		Breakdown:   Breakdown{Keywords: 80, Semantic: 60, Tone: 75},
		Keywords:    KeywordSets{Missing: []string{"SQL"}, Present: []string{"Python"}},
		Suggestions: []Suggestion{{Type: SuggestionTip, Title: "X", Description: "Y"}},
		Summary:     "ok",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("legacy result mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestDetectShapePrefersLegacy(t *testing.T) {
	raw := `{"score_breakdown":{},"keywords":{},"dimensions":{},"keyword_analysis":{"tier1_critical":[]}}`
	v, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Shape != ShapeLegacy {
		t.Fatalf("expected legacy, got %s", v.Shape)
	}
}

func TestDetectShapeOrder(t *testing.T) {
	cases := []struct {
		raw  string
		want Shape
	}{
		{`{"score_breakdown":{}}`, ShapeEnterprise},
		{`{"scoring_method":"hybrid_v2"}`, ShapeHybrid},
		{`{"dimensions":{},"keywords":{}}`, ShapeHybrid},
		{`{"score":10}`, ShapeEnterprise},
		{`{}`, ShapeEnterprise},
	}
	for _, tc := range cases {
		v, err := Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tc.raw, err)
		}
		if v.Shape != tc.want {
			t.Fatalf("Decode(%s): expected %s, got %s", tc.raw, tc.want, v.Shape)
		}
	}
}

func TestTransformEnterprise(t *testing.T) {
	raw := `{
		"score": 64,
		"keyword_analysis": {
			"tier1_critical": [
				{"keyword":"Kubernetes","match_type":"NONE","points":0},
				{"keyword":"Go","match_type":"EXACT","points":10}
			],
			"tier2_important": [{"keyword":"Terraform","match_type":"VARIANT"}],
			"tier3_bonus": [{"keyword":"Rust","match_type":"NONE"}]
		},
		"points_summary": {"total_earned": 40, "total_possible": 50},
		"critical_gaps": [
			{"missing_skill":"Kubernetes","impact":"HIGH","recommendation":"Add cluster work"},
			{"missing_skill":"Helm","impact":"MEDIUM","recommendation":"Mention charts"}
		],
		"summary": "Solid backend fit"
	}`

	got := Transform([]byte(raw))
	if got.Breakdown.Keywords != 80 {
		t.Fatalf("expected keywords 80, got %v", got.Breakdown.Keywords)
	}
	if got.Breakdown.Semantic != 75 || got.Breakdown.Tone != 80 {
		t.Fatalf("expected semantic 75 / tone 80, got %+v", got.Breakdown)
	}
	if !reflect.DeepEqual(got.Keywords.Missing, []string{"Kubernetes"}) {
		t.Fatalf("unexpected missing keywords: %v", got.Keywords.Missing)
	}
	if !reflect.DeepEqual(got.Keywords.Present, []string{"Go", "Terraform"}) {
		t.Fatalf("unexpected present keywords: %v", got.Keywords.Present)
	}
	if len(got.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got.Suggestions))
	}
	if got.Suggestions[0].Type != SuggestionCritical || got.Suggestions[1].Type != SuggestionWarning {
		t.Fatalf("unexpected suggestion types: %+v", got.Suggestions)
	}
	if got.Suggestions[0].Title != "Kubernetes" || got.Suggestions[0].Description != "Add cluster work" {
		t.Fatalf("unexpected gap suggestion: %+v", got.Suggestions[0])
	}
	if got.Summary != "Solid backend fit" {
		t.Fatalf("unexpected summary %q", got.Summary)
	}
}

func TestTransformEnterpriseZeroPossible(t *testing.T) {
	for _, raw := range []string{
		`{"points_summary":{"total_earned":10,"total_possible":0}}`,
		`{"points_summary":{"total_earned":10}}`,
		`{"points_summary":"n/a"}`,
	} {
		got := Transform([]byte(raw))
		if got.Breakdown.Keywords != 0 {
			t.Fatalf("%s: expected keywords 0, got %v", raw, got.Breakdown.Keywords)
		}
		if got.Summary != defaultSummary {
			t.Fatalf("%s: expected default summary, got %q", raw, got.Summary)
		}
	}
}

func TestTransformHybridQuickWinTypes(t *testing.T) {
	raw := `{
		"score": 81,
		"scoring_method": "hybrid_v2",
		"quick_wins": [
			{"type":"critical","title":"Add Critical Skill: Kafka","description":"a"},
			{"type":"high","title":"Strengthen: SQL","description":"b"},
			{"type":"medium","title":"Consider Adding: Rust","description":"c"},
			{"type":"low","title":"Polish Your Resume","description":"d"}
		]
	}`
	got := Transform([]byte(raw))
	want := []SuggestionType{SuggestionCritical, SuggestionWarning, SuggestionTip, SuggestionTip}
	if len(got.Suggestions) != len(want) {
		t.Fatalf("expected %d suggestions, got %d", len(want), len(got.Suggestions))
	}
	for i, typ := range want {
		if got.Suggestions[i].Type != typ {
			t.Fatalf("suggestion %d: expected %s, got %s", i, typ, got.Suggestions[i].Type)
		}
	}
}

func TestTransformHybridGapsSkipCoveredTitles(t *testing.T) {
	raw := `{
		"dimensions": {},
		"quick_wins": [{"type":"critical","title":"Add Critical Skill: Kafka","description":"from plan"}],
		"critical_gaps": [
			{"skill":"Kafka","tier":1,"suggestion":"dup"},
			{"skill":"GraphQL","tier":1,"suggestion":"Show an API you built"},
			{"skill":"Docker","tier":1}
		]
	}`
	got := Transform([]byte(raw))
	titles := make([]string, 0, len(got.Suggestions))
	for _, s := range got.Suggestions {
		titles = append(titles, s.Title)
	}
	want := []string{"Add Critical Skill: Kafka", "Add Critical Skill: GraphQL", "Add Critical Skill: Docker"}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("unexpected titles: %v", titles)
	}
	if got.Suggestions[1].Type != SuggestionCritical || got.Suggestions[1].Description != "Show an API you built" {
		t.Fatalf("unexpected gap suggestion: %+v", got.Suggestions[1])
	}
	if !strings.Contains(got.Suggestions[2].Description, "Docker") {
		t.Fatalf("expected fallback description to name the skill, got %q", got.Suggestions[2].Description)
	}
}

func TestTransformHybridKeywordsAndDimensions(t *testing.T) {
	raw := `{
		"score": 70,
		"dimensions": {
			"keyword_presence": {"score": 66, "label": "Good"},
			"job_alignment": {"score": 71, "label": "Strong"}
		},
		"keyword_analysis": {
			"present": [{"keyword":"Go","tier":1}, "Docker", {"tier":2}, 42],
			"missing": ["Kafka", {"keyword":"Helm"}]
		},
		"results": {"presentKeywords": ["go", "Postgres"], "missingKeywords": ["Kafka", "Istio"]},
		"summary": "Good match"
	}`
	got := Transform([]byte(raw))
	if !reflect.DeepEqual(got.Keywords.Present, []string{"Go", "Docker", "Postgres"}) {
		t.Fatalf("unexpected present: %v", got.Keywords.Present)
	}
	if !reflect.DeepEqual(got.Keywords.Missing, []string{"Kafka", "Helm", "Istio"}) {
		t.Fatalf("unexpected missing: %v", got.Keywords.Missing)
	}
	want := Breakdown{Keywords: 66, Semantic: 71, Tone: 50}
	if got.Breakdown != want {
		t.Fatalf("expected breakdown %+v, got %+v", want, got.Breakdown)
	}
}

func TestTransformHybridEvaluationPassThrough(t *testing.T) {
	evaluation := `{"hiring":{"status":"READY","summary":"s"},"ats":{"status":"PASS","checks":["parses"]},"verdict":{"ready_to_submit":true}}`
	raw := `{"scoring_method":"hybrid_v2","evaluation":` + evaluation + `}`
	got := Transform([]byte(raw))
	if string(got.Evaluation) != evaluation {
		t.Fatalf("evaluation not passed through byte for byte:\n got %s\nwant %s", got.Evaluation, evaluation)
	}

	payload, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(payload), `"ready_to_submit":true`) {
		t.Fatalf("expected evaluation in JSON output, got %s", payload)
	}
}

func TestTransformCapsKeywords(t *testing.T) {
	var entries []string
	for i := 0; i < 15; i++ {
		entries = append(entries, fmt.Sprintf(`{"keyword":"k%d","match_type":"NONE"}`, i))
	}
	raw := `{"keyword_analysis":{"tier1_critical":[` + strings.Join(entries, ",") + `]}}`
	got := Transform([]byte(raw))
	if len(got.Keywords.Missing) != 10 {
		t.Fatalf("expected 10 missing keywords, got %d", len(got.Keywords.Missing))
	}
	if got.Keywords.Missing[0] != "k0" || got.Keywords.Missing[9] != "k9" {
		t.Fatalf("expected first ten entries, got %v", got.Keywords.Missing)
	}
}

func TestTransformBoundsForAllShapes(t *testing.T) {
	payloads := []string{
		`{"score":140,"score_breakdown":{"keywords":-5,"semantic":300,"tone":"x"},"keywords":{"missing":"SQL","present":null}}`,
		`{"score":-3,"dimensions":{"keyword_presence":{"score":180}},"keyword_analysis":{"present":"oops"}}`,
		`{"score":"high","points_summary":{"total_earned":90,"total_possible":30},"critical_gaps":"none"}`,
	}
	for _, raw := range payloads {
		got := Transform([]byte(raw))
		for name, v := range map[string]float64{
			"score":    got.Score,
			"keywords": got.Breakdown.Keywords,
			"semantic": got.Breakdown.Semantic,
			"tone":     got.Breakdown.Tone,
		} {
			if v < 0 || v > 100 {
				t.Fatalf("%s: %s out of range: %v", raw, name, v)
			}
		}
		if got.Keywords.Missing == nil || got.Keywords.Present == nil || got.Suggestions == nil {
			t.Fatalf("%s: expected non-nil lists, got %+v", raw, got)
		}
	}
}

func TestTransformMalformedFallsBack(t *testing.T) {
	for _, raw := range []string{``, `null`, `[1,2]`, `"text"`, `{"score":`} {
		got := Transform([]byte(raw))
		if !reflect.DeepEqual(got, DefaultResult()) {
			t.Fatalf("%q: expected default result, got %+v", raw, got)
		}
	}
	if _, err := Decode([]byte(`[1]`)); err != ErrMalformedResult {
		t.Fatalf("expected ErrMalformedResult, got %v", err)
	}
}

func TestNormalizeMismatchedVariant(t *testing.T) {
	got := Normalize(Variant{Shape: ShapeHybrid})
	if !reflect.DeepEqual(got, DefaultResult()) {
		t.Fatalf("expected default result, got %+v", got)
	}
}
