package cli

import (
	"context"

	"github.com/google/uuid"

	"resume-tailor/internal/subscription"
	"resume-tailor/internal/usage"
)

// guestID returns the stable anonymous id, minting one on first use.
func (e *env) guestID(ctx context.Context) (string, error) {
	id, ok, err := e.state.Get(ctx, stateGuestID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := e.state.Set(ctx, stateGuestID, id, 0); err != nil {
		return "", err
	}
	return id, nil
}

// session loads the subscription state the way the web app does on page
// load: one guest or one signed-in load, never both.
func (e *env) session(ctx context.Context) (*subscription.Manager, *usage.Tracker) {
	mgr := subscription.NewManager(e.api, e.state)
	mgr.Load(ctx, e.signedIn(ctx))
	return mgr, usage.NewTracker(e.state, mgr)
}
