// Package profiles stores the per-account subscription and usage record.
package profiles

import (
	"context"
	"errors"
	"time"

	"resume-tailor/internal/subscription"
)

// UsagePeriod is the length of a usage window for accounts without a billing
// period of their own.
const UsagePeriod = 30 * 24 * time.Hour

// Subscription statuses mirrored from the payment provider.
const (
	StatusNone     = "none"
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

var ErrNotFound = errors.New("profile not found")

// Profile is one account's subscription and usage record.
type Profile struct {
	ID                    string
	Email                 string
	FullName              string
	Tier                  subscription.Tier
	Status                string
	StripeCustomerID      string
	StripeSubscriptionID  string
	CurrentPeriodEnd      *time.Time
	CancelAtPeriodEnd     bool
	AnalysesUsed          int
	AnalysesLimit         int
	UsageResetsAt         time.Time
	GuestUsageTransferred bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// New returns a free-tier profile with an empty usage window starting at now.
func New(id, email string, now time.Time) Profile {
	now = now.UTC()
	return Profile{
		ID:            id,
		Email:         email,
		Tier:          subscription.TierFree,
		Status:        StatusNone,
		AnalysesLimit: subscription.LimitFor(subscription.TierFree),
		UsageResetsAt: now.Add(UsagePeriod),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Remaining returns the analyses left in the current window, never negative.
func (p Profile) Remaining() int {
	if r := p.AnalysesLimit - p.AnalysesUsed; r > 0 {
		return r
	}
	return 0
}

// Snapshot renders the profile as the subscription record clients fetch.
func (p Profile) Snapshot() subscription.Snapshot {
	snap := subscription.Snapshot{
		Tier:          p.Tier,
		AnalysesUsed:  p.AnalysesUsed,
		AnalysesLimit: p.AnalysesLimit,
		Features:      subscription.Features(p.Tier),
	}
	resets := p.UsageResetsAt
	snap.PeriodEnd = &resets
	if p.Status != "" && p.Status != StatusNone {
		snap.Subscription = &subscription.Details{
			Status:            p.Status,
			CurrentPeriodEnd:  p.CurrentPeriodEnd,
			CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		}
	}
	return snap
}

// Repo persists profiles. Mutate is the only write path for usage and tier
// fields: it loads the row under a lock, creating a free profile if absent,
// applies fn and writes the result back. If fn returns an error nothing is written.
type Repo interface {
	Ensure(ctx context.Context, id, email, fullName string) (Profile, error)
	Get(ctx context.Context, id string) (Profile, error)
	FindByCustomerID(ctx context.Context, customerID string) (Profile, error)
	Mutate(ctx context.Context, id string, fn func(p *Profile) error) (Profile, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}
