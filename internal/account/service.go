// Package account serves the signed-in view of a subscription and links
// guest activity to an account after sign-in.
package account

import (
	"context"
	"errors"
	"strings"

	"resume-tailor/internal/profiles"
	"resume-tailor/internal/shared/telemetry"
	"resume-tailor/internal/subscription"
	"resume-tailor/internal/usage"
)

const guestPrefix = "guest:"

var ErrInvalidClaim = errors.New("invalid claim")

// UsageLedger is the subset of usage.Service the account flows need.
type UsageLedger interface {
	Check(ctx context.Context, userID string) (usage.Check, error)
	TransferGuest(ctx context.Context, userID, guestID string, reported int) (int, error)
}

// AnalysisClaimer moves a guest's stored analyses to an account.
type AnalysisClaimer interface {
	ClaimGuest(ctx context.Context, guestUserID, userID string) (int, error)
}

// SessionClaimer links a completed guest checkout to an account.
type SessionClaimer interface {
	Claim(ctx context.Context, userID, guestID, sessionID string) (profiles.Profile, error)
}

// Service implements the subscription and claim flows.
type Service struct {
	Profiles profiles.Repo
	Usage    UsageLedger
	Analyses AnalysisClaimer
	// Checkout is optional; without it session ids are rejected.
	Checkout SessionClaimer
}

// Identity is the caller as seen by the auth middleware.
type Identity struct {
	UserID  string
	Email   string
	Name    string
	GuestID string
	IsGuest bool
}

// Subscription returns the caller's tier, usage and features. Guests get a
// synthetic guest-tier snapshot backed by their server-side counter.
func (s *Service) Subscription(ctx context.Context, id Identity) (subscription.Snapshot, error) {
	check, err := s.Usage.Check(ctx, id.UserID)
	if err != nil {
		return subscription.Snapshot{}, err
	}
	if id.IsGuest {
		return subscription.Snapshot{
			Tier:          subscription.TierGuest,
			AnalysesUsed:  check.Used,
			AnalysesLimit: check.Limit,
			Features:      subscription.Features(subscription.TierGuest),
		}, nil
	}
	p, err := s.Profiles.Ensure(ctx, id.UserID, id.Email, id.Name)
	if err != nil {
		return subscription.Snapshot{}, err
	}
	return p.Snapshot(), nil
}

// ClaimInput is the body of a claim request plus the caller's identity.
type ClaimInput struct {
	UserID            string
	GuestID           string
	SessionID         string
	GuestAnalysesUsed int
}

// ClaimResult reports what a claim moved.
type ClaimResult struct {
	MigratedAnalyses int                   `json:"migratedAnalyses"`
	CreditedUsage    int                   `json:"creditedUsage"`
	Subscription     subscription.Snapshot `json:"subscription"`
}

// Claim links guest activity to the signed-in account: stored analyses move
// over, guest usage is credited once, and a completed guest checkout session
// upgrades the account. Usage is credited before the upgrade so a new pro
// period starts clean.
func (s *Service) Claim(ctx context.Context, in ClaimInput) (ClaimResult, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.GuestID = strings.TrimSpace(in.GuestID)
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.UserID == "" || strings.HasPrefix(in.UserID, guestPrefix) {
		return ClaimResult{}, ErrInvalidClaim
	}
	if in.GuestAnalysesUsed < 0 {
		in.GuestAnalysesUsed = 0
	}

	var res ClaimResult
	if in.GuestID != "" && s.Analyses != nil {
		n, err := s.Analyses.ClaimGuest(ctx, guestPrefix+in.GuestID, in.UserID)
		if err != nil {
			return ClaimResult{}, err
		}
		res.MigratedAnalyses = n
	}

	credited, err := s.Usage.TransferGuest(ctx, in.UserID, in.GuestID, in.GuestAnalysesUsed)
	if err != nil {
		return ClaimResult{}, err
	}
	res.CreditedUsage = credited

	var p profiles.Profile
	if in.SessionID != "" {
		if s.Checkout == nil {
			return ClaimResult{}, ErrInvalidClaim
		}
		p, err = s.Checkout.Claim(ctx, in.UserID, in.GuestID, in.SessionID)
	} else {
		p, err = s.Profiles.Get(ctx, in.UserID)
	}
	if err != nil {
		return ClaimResult{}, err
	}
	res.Subscription = p.Snapshot()

	telemetry.Info("account.claimed", map[string]any{
		"user_id":           in.UserID,
		"migrated_analyses": res.MigratedAnalyses,
		"credited_usage":    res.CreditedUsage,
		"session":           in.SessionID != "",
	})
	return res, nil
}
