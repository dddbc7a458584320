package subscription

import "sort"

// Feature names as the UI and the API refer to them.
const (
	FeatureBasicAnalysis        = "basicAnalysis"
	FeatureFullOptimizationPlan = "fullOptimizationPlan"
	FeatureResumeQualityFull    = "resumeQualityFull"
	FeatureInterviewPrepFull    = "interviewPrepFull"
	FeatureCoverLetterGenerator = "coverLetterGenerator"
	FeatureResumeRewriter       = "resumeRewriter"
	FeaturePDFExport            = "pdfExport"
	FeatureTeamDashboard        = "teamDashboard"
)

type tierSet map[Tier]struct{}

func tiers(ts ...Tier) tierSet {
	s := make(tierSet, len(ts))
	for _, t := range ts {
		s[t] = struct{}{}
	}
	return s
}

var featureTable = map[string]tierSet{
	FeatureBasicAnalysis:        tiers(TierGuest, TierFree, TierPro, TierCommercial),
	FeatureFullOptimizationPlan: tiers(TierPro, TierCommercial),
	FeatureResumeQualityFull:    tiers(TierPro, TierCommercial),
	FeatureInterviewPrepFull:    tiers(TierPro, TierCommercial),
	FeatureCoverLetterGenerator: tiers(TierPro, TierCommercial),
	FeatureResumeRewriter:       tiers(TierPro, TierCommercial),
	FeaturePDFExport:            tiers(TierPro, TierCommercial),
	FeatureTeamDashboard:        tiers(TierCommercial),
}

// HasFeature reports whether t may use the named feature. Unknown names are
// never granted.
func HasFeature(t Tier, name string) bool {
	set, ok := featureTable[name]
	if !ok {
		return false
	}
	_, ok = set[t]
	return ok
}

// Features lists the features available to t, sorted by name.
func Features(t Tier) []string {
	out := make([]string, 0, len(featureTable))
	for name, set := range featureTable {
		if _, ok := set[t]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// FeatureNames lists every known feature, sorted by name.
func FeatureNames() []string {
	out := make([]string, 0, len(featureTable))
	for name := range featureTable {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
