package analyses

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var evaluationValidator = validator.New(validator.WithRequiredStructEnabled())

// Evaluation is a typed view over the gate-based verdict the scoring service
// may attach. The display result keeps the original bytes; this view is only
// used for checks.
type Evaluation struct {
	Hiring      HiringGate      `json:"hiring"`
	ATS         ATSGate         `json:"ats"`
	Search      SearchGate      `json:"search"`
	Alignment   AlignmentScore  `json:"alignment"`
	Readability ReadabilityNote `json:"readability"`
	Verdict     Verdict         `json:"verdict"`
}

type HiringGate struct {
	Status      string `json:"status" validate:"omitempty,oneof=READY NEEDS_ATTENTION"`
	Summary     string `json:"summary"`
	Reassurance string `json:"reassurance"`
}

type ATSGate struct {
	Status  string            `json:"status" validate:"omitempty,oneof=PASS FAIL"`
	Checks  []json.RawMessage `json:"checks"`
	Summary string            `json:"summary"`
}

type SearchGate struct {
	Status  string   `json:"status" validate:"omitempty,oneof=DISCOVERABLE LIMITED LOW_VISIBILITY"`
	Matched int      `json:"matched" validate:"gte=0"`
	Total   int      `json:"total" validate:"gte=0"`
	Terms   []string `json:"terms"`
	Summary string   `json:"summary"`
}

type AlignmentScore struct {
	Score       float64           `json:"score" validate:"gte=0,lte=100"`
	Label       string            `json:"label"`
	Strengths   []string          `json:"strengths"`
	Refinements []json.RawMessage `json:"refinements"`
}

type ReadabilityNote struct {
	Label string   `json:"label"`
	Notes []string `json:"notes"`
}

type Verdict struct {
	ReadyToSubmit  bool   `json:"ready_to_submit"`
	Message        string `json:"message"`
	StopOptimizing bool   `json:"stop_optimizing"`
}

// ParseEvaluation decodes and validates an evaluation object.
func ParseEvaluation(raw json.RawMessage) (Evaluation, error) {
	var ev Evaluation
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	if err := evaluationValidator.Struct(ev); err != nil {
		return ev, fmt.Errorf("validate evaluation: %w", err)
	}
	return ev, nil
}

// Consistent reports whether a READY hiring verdict is backed by a passing
// ATS gate. The scoring service owns this rule; callers only observe it.
func (e Evaluation) Consistent() bool {
	return e.Hiring.Status != "READY" || e.ATS.Status == "PASS"
}
