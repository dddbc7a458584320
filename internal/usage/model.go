package usage

import "time"

// Reason explains a usage decision.
type Reason string

const (
	ReasonOK         Reason = "ok"
	ReasonGuestLimit Reason = "guest_limit"
	ReasonFreeLimit  Reason = "free_limit"
	// ReasonPlanLimit is only produced by the server, which enforces paid ceilings too.
	ReasonPlanLimit Reason = "plan_limit"
)

// Check is the outcome of a usage check.
type Check struct {
	Allowed   bool       `json:"allowed"`
	Reason    Reason     `json:"reason"`
	Remaining int        `json:"remaining"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	IsGuest   bool       `json:"isGuest"`
	Tier      string     `json:"tier,omitempty"`
	ResetsAt  *time.Time `json:"resetsAt,omitempty"`
}

// ErrorCode maps a blocking reason to the API error code clients localize.
func (r Reason) ErrorCode() string {
	switch r {
	case ReasonGuestLimit:
		return "GUEST_LIMIT_REACHED"
	case ReasonFreeLimit:
		return "FREE_LIMIT_REACHED"
	case ReasonPlanLimit:
		return "PLAN_LIMIT_REACHED"
	default:
		return ""
	}
}

func remaining(used, limit int) int {
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}
