package analysis

import (
	"sort"

	"competitive-insights/models"
)

// CompareFeatures splits feature sets into unique, common and missing.
// Features are compared verbatim; normalization happens upstream.
//
//	unique  = main − ⋃ competitors
//	common  = main ∩ ⋂ competitors
//	missing = ⋃ competitors − main
//
// With no competitors the intersection is empty, so every main feature is unique.
func CompareFeatures(main []string, competitors [][]string) models.FeatureDiff {
	mainSet := toSet(main)
	union := make(map[string]struct{})
	var intersection map[string]struct{}

	for _, features := range competitors {
		set := toSet(features)
		for f := range set {
			union[f] = struct{}{}
		}
		if intersection == nil {
			intersection = set
			continue
		}
		for f := range intersection {
			if _, ok := set[f]; !ok {
				delete(intersection, f)
			}
		}
	}

	diff := models.FeatureDiff{
		Unique:  []string{},
		Common:  []string{},
		Missing: []string{},
	}
	for f := range mainSet {
		if _, ok := union[f]; !ok {
			diff.Unique = append(diff.Unique, f)
		}
		if _, ok := intersection[f]; ok {
			diff.Common = append(diff.Common, f)
		}
	}
	for f := range union {
		if _, ok := mainSet[f]; !ok {
			diff.Missing = append(diff.Missing, f)
		}
	}
	sort.Strings(diff.Unique)
	sort.Strings(diff.Common)
	sort.Strings(diff.Missing)
	diff.DiversityScore = diversityScore(len(diff.Unique), len(diff.Common), len(diff.Missing))
	return diff
}

// diversityScore weights unique features double and penalises missing ones.
func diversityScore(unique, common, missing int) float64 {
	total := unique + common + missing
	if total == 0 {
		return 0
	}
	return clamp(float64(unique*2+common-missing)/float64(total)*50, 0, 100)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
