// Package subscription models pricing tiers, the feature-access table and the
// session-scoped owner of a caller's tier and usage state.
package subscription

import "strings"

// Tier is a pricing level.
type Tier string

const (
	TierGuest      Tier = "guest"
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierCommercial Tier = "commercial"
)

var analysisLimits = map[Tier]int{
	TierGuest:      3,
	TierFree:       5,
	TierPro:        50,
	TierCommercial: 500,
}

// LimitFor returns the per-period analysis ceiling for t. Unknown tiers get
// the free ceiling.
func LimitFor(t Tier) int {
	if n, ok := analysisLimits[t]; ok {
		return n
	}
	return analysisLimits[TierFree]
}

// ParseTier maps a stored or fetched tier name onto a registered tier.
// Anything unrecognised is treated as free; guest is never a registered tier.
func ParseTier(raw string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierPro:
		return TierPro
	case TierCommercial:
		return TierCommercial
	default:
		return TierFree
	}
}

// IsPaid reports whether t is a paying tier.
func IsPaid(t Tier) bool {
	return t == TierPro || t == TierCommercial
}

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	_, ok := analysisLimits[t]
	return ok
}
