package subscription

import "time"

// Details describes the billing subscription behind a paid tier.
type Details struct {
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

// Snapshot is the subscription record served by GET /api/subscription.
type Snapshot struct {
	Tier          Tier       `json:"tier"`
	Subscription  *Details   `json:"subscription,omitempty"`
	AnalysesUsed  int        `json:"analyses_used"`
	AnalysesLimit int        `json:"analyses_limit"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
	Features      []string   `json:"features"`
}
