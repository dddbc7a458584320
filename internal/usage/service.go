package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resume-tailor/internal/profiles"
	"resume-tailor/internal/shared/storage/kv"
	"resume-tailor/internal/shared/telemetry"
	"resume-tailor/internal/subscription"
)

const guestPrefix = "guest:"

const guestKeyFormat = "app:usage:guest:%s:"

// GuestStore scopes the shared KV store to one guest's counters.
func GuestStore(base kv.Store, guestID string) kv.Store {
	return kv.Namespace(base, fmt.Sprintf(guestKeyFormat, guestID))
}

// Service is the authoritative, server-side usage ledger. Registered usage
// lives on the profile row; guest usage lives in the KV store.
type Service struct {
	profiles   profiles.Repo
	guests     kv.Store
	GuestLimit int
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(repo profiles.Repo, guests kv.Store) *Service {
	return &Service{
		profiles:   repo,
		guests:     guests,
		GuestLimit: subscription.LimitFor(subscription.TierGuest),
		now:        time.Now,
	}
}

func splitGuest(userID string) (string, bool) {
	return strings.CutPrefix(userID, guestPrefix)
}

// Check reports whether userID may run another analysis. Every tier's ceiling
// is enforced here.
func (s *Service) Check(ctx context.Context, userID string) (Check, error) {
	if guestID, ok := splitGuest(userID); ok {
		used, err := subscription.ReadGuestCount(ctx, GuestStore(s.guests, guestID))
		if err != nil {
			return Check{}, err
		}
		return s.guestCheck(used), nil
	}
	p, err := s.profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
		s.rollIfDue(p)
		return nil
	})
	if err != nil {
		return Check{}, err
	}
	return profileCheck(p), nil
}

// Consume charges one analysis to userID, failing with ErrLimitReached when
// the allowance is exhausted.
func (s *Service) Consume(ctx context.Context, userID string) (Check, error) {
	if guestID, ok := splitGuest(userID); ok {
		return s.consumeGuest(ctx, guestID)
	}
	var blocked Check
	p, err := s.profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
		s.rollIfDue(p)
		if p.AnalysesUsed >= p.AnalysesLimit {
			blocked = profileCheck(*p)
			return ErrLimitReached
		}
		p.AnalysesUsed++
		return nil
	})
	if errors.Is(err, ErrLimitReached) {
		return blocked, err
	}
	if err != nil {
		return Check{}, err
	}
	return profileCheck(p), nil
}

// Refund returns one analysis to userID, used when the analysis could not be stored.
func (s *Service) Refund(ctx context.Context, userID string) error {
	if guestID, ok := splitGuest(userID); ok {
		store := GuestStore(s.guests, guestID)
		used, err := subscription.ReadGuestCount(ctx, store)
		if err != nil {
			return err
		}
		return subscription.WriteGuestCount(ctx, store, used-1)
	}
	_, err := s.profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
		if p.AnalysesUsed > 0 {
			p.AnalysesUsed--
		}
		return nil
	})
	return err
}

func (s *Service) consumeGuest(ctx context.Context, guestID string) (Check, error) {
	store := GuestStore(s.guests, guestID)
	used, err := subscription.ReadGuestCount(ctx, store)
	if err != nil {
		return Check{}, err
	}
	if used >= s.GuestLimit {
		return s.guestCheck(used), ErrLimitReached
	}

	n, err := kv.Incr(ctx, store, subscription.GuestUsageKey)
	if errors.Is(err, kv.ErrIncrUnsupported) {
		n = int64(used + 1)
		err = subscription.WriteGuestCount(ctx, store, int(n))
	}
	if err != nil {
		return Check{}, err
	}
	if int(n) > s.GuestLimit {
		// Lost a race for the last credit; hand the increment back.
		if _, derr := kv.Decr(ctx, store, subscription.GuestUsageKey); derr != nil {
			telemetry.Warn("usage.guest_decr_failed", map[string]any{"guest_id": guestID, "error": derr.Error()})
		}
		return s.guestCheck(s.GuestLimit), ErrLimitReached
	}
	return s.guestCheck(int(n)), nil
}

// Reset zeroes the current window and starts a new one.
func (s *Service) Reset(ctx context.Context, userID string) (Check, error) {
	if guestID, ok := splitGuest(userID); ok {
		if err := GuestStore(s.guests, guestID).Clear(ctx, subscription.GuestUsageKey); err != nil {
			return Check{}, err
		}
		return s.guestCheck(0), nil
	}
	p, err := s.profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
		p.AnalysesUsed = 0
		p.UsageResetsAt = s.nextReset(*p)
		return nil
	})
	if err != nil {
		return Check{}, err
	}
	return profileCheck(p), nil
}

// TransferGuest credits a guest's prior analyses to a new account, at most
// once per account. When guestID is known the server-side guest counter is
// drained; otherwise the count reported by the client is used, capped at the
// guest ceiling. It returns the number of analyses credited.
func (s *Service) TransferGuest(ctx context.Context, userID, guestID string, reported int) (int, error) {
	n := 0
	if guestID != "" {
		drained, err := NewTracker(GuestStore(s.guests, guestID), nil).TransferGuestUsage(ctx)
		if err != nil {
			return 0, err
		}
		n = drained
	}
	if n == 0 && reported > 0 {
		n = reported
	}
	if n > s.GuestLimit {
		n = s.GuestLimit
	}

	credited := 0
	_, err := s.profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
		if p.GuestUsageTransferred {
			return nil
		}
		p.AnalysesUsed += n
		p.GuestUsageTransferred = true
		credited = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	telemetry.Info("usage.guest_transferred", map[string]any{"user_id": userID, "credited": credited})
	return credited, nil
}

// RollOver resets every profile whose usage window has ended. It returns the
// number of profiles reset.
func (s *Service) RollOver(ctx context.Context, batch int) (int, error) {
	now := s.now().UTC()
	ids, err := s.profiles.ListDue(ctx, now, batch)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		rolled := false
		if _, err := s.profiles.Mutate(ctx, id, func(p *profiles.Profile) error {
			rolled = s.rollIfDue(p)
			return nil
		}); err != nil {
			telemetry.Error("usage.rollover_failed", map[string]any{"user_id": id, "error": err.Error()})
			continue
		}
		if rolled {
			count++
		}
	}
	return count, nil
}

func (s *Service) rollIfDue(p *profiles.Profile) bool {
	now := s.now().UTC()
	if p.UsageResetsAt.After(now) {
		return false
	}
	p.AnalysesUsed = 0
	p.UsageResetsAt = s.nextReset(*p)
	return true
}

func (s *Service) nextReset(p profiles.Profile) time.Time {
	now := s.now().UTC()
	if p.CurrentPeriodEnd != nil && p.CurrentPeriodEnd.After(now) {
		return p.CurrentPeriodEnd.UTC()
	}
	return now.Add(profiles.UsagePeriod)
}

func (s *Service) guestCheck(used int) Check {
	c := Check{
		Allowed:   used < s.GuestLimit,
		Reason:    ReasonOK,
		Remaining: remaining(used, s.GuestLimit),
		Used:      used,
		Limit:     s.GuestLimit,
		IsGuest:   true,
		Tier:      string(subscription.TierGuest),
	}
	if !c.Allowed {
		c.Reason = ReasonGuestLimit
	}
	return c
}

func profileCheck(p profiles.Profile) Check {
	resets := p.UsageResetsAt
	c := Check{
		Allowed:   p.AnalysesUsed < p.AnalysesLimit,
		Reason:    ReasonOK,
		Remaining: p.Remaining(),
		Used:      p.AnalysesUsed,
		Limit:     p.AnalysesLimit,
		Tier:      string(p.Tier),
		ResetsAt:  &resets,
	}
	if !c.Allowed {
		if p.Tier == subscription.TierFree {
			c.Reason = ReasonFreeLimit
		} else {
			c.Reason = ReasonPlanLimit
		}
	}
	return c
}
