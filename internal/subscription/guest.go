package subscription

import (
	"context"
	"strconv"
	"strings"

	"resume-tailor/internal/shared/storage/kv"
)

// GuestUsageKey is the persisted key holding a guest's analysis count.
const GuestUsageKey = "guest_analyses_used"

// ReadGuestCount returns the persisted guest counter. Missing or unparseable
// values read as zero.
func ReadGuestCount(ctx context.Context, store kv.Store) (int, error) {
	raw, ok, err := store.Get(ctx, GuestUsageKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// WriteGuestCount persists the guest counter.
func WriteGuestCount(ctx context.Context, store kv.Store, n int) error {
	if n < 0 {
		n = 0
	}
	return store.Set(ctx, GuestUsageKey, strconv.Itoa(n), 0)
}
