package usage

import (
	"context"

	"resume-tailor/internal/shared/storage/kv"
	"resume-tailor/internal/subscription"
)

// Subscription is the part of subscription.Manager the tracker needs.
type Subscription interface {
	State() subscription.State
	IncrementUsage()
}

// Tracker is the client-side usage gate. It is a best-effort cache: the guest
// counter is a plain read-modify-write and two concurrent sessions can both
// read a stale count. The server enforces limits authoritatively.
type Tracker struct {
	store      kv.Store
	sub        Subscription
	GuestLimit int
}

// NewTracker builds a tracker over the guest counter store. A nil sub means
// the caller is always a guest.
func NewTracker(store kv.Store, sub Subscription) *Tracker {
	return &Tracker{store: store, sub: sub, GuestLimit: subscription.LimitFor(subscription.TierGuest)}
}

func (t *Tracker) state() (subscription.State, bool) {
	if t.sub == nil {
		return subscription.State{Tier: subscription.TierGuest}, true
	}
	st := t.sub.State()
	return st, st.Tier == subscription.TierGuest || st.Tier == ""
}

// CheckCanAnalyze decides whether another analysis may start. Only exhausted
// guests and exhausted free accounts are blocked; paid ceilings are left to
// the server.
func (t *Tracker) CheckCanAnalyze(ctx context.Context) (Check, error) {
	st, guest := t.state()
	if guest {
		used, err := subscription.ReadGuestCount(ctx, t.store)
		if err != nil {
			return Check{}, err
		}
		limit := t.GuestLimit
		c := Check{
			Allowed:   used < limit,
			Reason:    ReasonOK,
			Remaining: remaining(used, limit),
			Used:      used,
			Limit:     limit,
			IsGuest:   true,
			Tier:      string(subscription.TierGuest),
		}
		if !c.Allowed {
			c.Reason = ReasonGuestLimit
		}
		return c, nil
	}

	used, limit := st.Usage.AnalysesUsed, st.Usage.AnalysesLimit
	c := Check{
		Allowed:   true,
		Reason:    ReasonOK,
		Remaining: remaining(used, limit),
		Used:      used,
		Limit:     limit,
		Tier:      string(st.Tier),
		ResetsAt:  st.Usage.PeriodEnd,
	}
	if st.Tier == subscription.TierFree && used >= limit {
		c.Allowed = false
		c.Reason = ReasonFreeLimit
	}
	return c, nil
}

// IncrementUsage records one analysis. Guests bump the persisted counter;
// signed-in callers bump the subscription manager's in-memory count.
func (t *Tracker) IncrementUsage(ctx context.Context) error {
	if _, guest := t.state(); !guest {
		t.sub.IncrementUsage()
		return nil
	}
	used, err := subscription.ReadGuestCount(ctx, t.store)
	if err != nil {
		return err
	}
	return subscription.WriteGuestCount(ctx, t.store, used+1)
}

// TransferGuestUsage reads and clears the guest counter, returning the prior
// value. The counter is gone even if the caller then fails to credit it.
func (t *Tracker) TransferGuestUsage(ctx context.Context) (int, error) {
	used, err := subscription.ReadGuestCount(ctx, t.store)
	if err != nil {
		return 0, err
	}
	if err := t.store.Clear(ctx, subscription.GuestUsageKey); err != nil {
		return 0, err
	}
	return used, nil
}
