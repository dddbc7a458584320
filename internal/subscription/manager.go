package subscription

import (
	"context"
	"sync"
	"time"

	"resume-tailor/internal/shared/storage/kv"
	"resume-tailor/internal/shared/telemetry"
)

// Status is the load state of a Manager.
type Status string

const (
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
)

// Usage is the analysis consumption for the current period.
type Usage struct {
	AnalysesUsed  int        `json:"analyses_used"`
	AnalysesLimit int        `json:"analyses_limit"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
}

// State is everything the Manager knows about the current caller.
type State struct {
	Status       Status   `json:"status"`
	SignedIn     bool     `json:"signed_in"`
	Tier         Tier     `json:"tier"`
	Usage        Usage    `json:"usage"`
	Subscription *Details `json:"subscription,omitempty"`
}

// Fetcher loads the signed-in account's subscription record.
type Fetcher interface {
	FetchSubscription(ctx context.Context) (Snapshot, error)
}

// Manager owns tier and usage state for one session. Every load replaces the
// state wholesale; loads are sequenced so a slow, superseded fetch is dropped.
type Manager struct {
	fetcher Fetcher
	guest   kv.Store

	mu       sync.RWMutex
	state    State
	seq      uint64
	signedIn bool
}

// NewManager builds a Manager. guest holds the local guest counter.
func NewManager(fetcher Fetcher, guest kv.Store) *Manager {
	return &Manager{
		fetcher: fetcher,
		guest:   guest,
		state: State{
			Status: StatusLoading,
			Tier:   TierGuest,
			Usage:  Usage{AnalysesLimit: LimitFor(TierGuest)},
		},
	}
}

// Load runs exactly one of the guest or signed-in loads and installs the
// result, unless a newer load started in the meantime.
func (m *Manager) Load(ctx context.Context, signedIn bool) State {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.signedIn = signedIn
	m.state.Status = StatusLoading
	m.mu.Unlock()

	next := m.load(ctx, signedIn)

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.seq {
		telemetry.Info("subscription.load_superseded", map[string]any{"seq": seq, "current": m.seq})
		return m.state
	}
	m.state = next
	return next
}

// OnAuthChange reloads after a sign-in or sign-out.
func (m *Manager) OnAuthChange(ctx context.Context, signedIn bool) State {
	return m.Load(ctx, signedIn)
}

// Refresh re-runs the load for the current auth state.
func (m *Manager) Refresh(ctx context.Context) State {
	m.mu.RLock()
	signedIn := m.signedIn
	m.mu.RUnlock()
	return m.Load(ctx, signedIn)
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Tier returns the current tier.
func (m *Manager) Tier() Tier {
	return m.State().Tier
}

// HasFeature reports whether the current tier may use name.
func (m *Manager) HasFeature(name string) bool {
	return HasFeature(m.Tier(), name)
}

// IsPaid reports whether the current tier is paid.
func (m *Manager) IsPaid() bool {
	return IsPaid(m.Tier())
}

// IncrementUsage bumps the in-memory registered counter after an analysis.
// The server record stays authoritative; the next load overwrites this value.
func (m *Manager) IncrementUsage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Usage.AnalysesUsed++
}

func (m *Manager) load(ctx context.Context, signedIn bool) State {
	if !signedIn {
		used := 0
		if m.guest != nil {
			n, err := ReadGuestCount(ctx, m.guest)
			if err != nil {
				telemetry.Warn("subscription.guest_read_failed", map[string]any{"error": err.Error()})
			}
			used = n
		}
		return State{
			Status: StatusLoaded,
			Tier:   TierGuest,
			Usage:  Usage{AnalysesUsed: used, AnalysesLimit: LimitFor(TierGuest)},
		}
	}

	fallback := State{
		Status:   StatusLoaded,
		SignedIn: true,
		Tier:     TierFree,
		Usage:    Usage{AnalysesLimit: LimitFor(TierFree)},
	}
	if m.fetcher == nil {
		return fallback
	}
	snap, err := m.fetcher.FetchSubscription(ctx)
	if err != nil {
		telemetry.Warn("subscription.fetch_failed", map[string]any{"error": err.Error()})
		return fallback
	}

	tier := ParseTier(string(snap.Tier))
	used := snap.AnalysesUsed
	if used < 0 {
		used = 0
	}
	return State{
		Status:       StatusLoaded,
		SignedIn:     true,
		Tier:         tier,
		Usage:        Usage{AnalysesUsed: used, AnalysesLimit: LimitFor(tier), PeriodEnd: snap.PeriodEnd},
		Subscription: snap.Subscription,
	}
}
