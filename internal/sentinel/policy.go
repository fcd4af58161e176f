package sentinel

import (
	"fmt"
	"sort"
	"strings"
)

// OverlapPolicy decides which raw matches survive when spans collide
type OverlapPolicy string

const (
	// PolicyExact only drops matches whose span is identical to an earlier
	// one. Partially overlapping matches are all rewritten, and a leftward
	// rewrite can splice into a placeholder that was already written.
	PolicyExact OverlapPolicy = "exact"
	// PolicyLongest keeps the earliest-starting match, preferring the longer
	// span on ties, and drops any match overlapping a kept one.
	PolicyLongest OverlapPolicy = "longest"
	// PolicyMerge folds overlapping matches into a single span attributed to
	// the most severe contributing rule.
	PolicyMerge OverlapPolicy = "merge"
)

// DefaultPolicy is used when no policy is configured
const DefaultPolicy = PolicyLongest

// ParsePolicy converts a configuration value into an OverlapPolicy
func ParsePolicy(value string) (OverlapPolicy, error) {
	switch p := OverlapPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return DefaultPolicy, nil
	case PolicyExact, PolicyLongest, PolicyMerge:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overlap policy %q (must be exact, longest, or merge)", value)
	}
}

// resolve applies the policy and returns the surviving matches ordered by
// start offset descending, ready for right-to-left rewriting
func (p OverlapPolicy) resolve(text string, matches []RawMatch) []RawMatch {
	var kept []RawMatch
	switch p {
	case PolicyExact:
		kept = dedupeExact(matches)
	case PolicyMerge:
		kept = mergeOverlapping(text, matches)
	default:
		kept = keepLongest(matches)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Start > kept[j].Start
	})
	return kept
}

type span struct{ start, end int }

// dedupeExact keeps the first match for every distinct (start, end)
func dedupeExact(matches []RawMatch) []RawMatch {
	seen := make(map[span]bool, len(matches))
	kept := make([]RawMatch, 0, len(matches))
	for _, m := range matches {
		key := span{m.Start, m.End}
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, m)
	}
	return kept
}

// byStartThenLongest returns a copy of matches sorted by start ascending,
// longer spans first on equal starts, collection order otherwise
func byStartThenLongest(matches []RawMatch) []RawMatch {
	sorted := make([]RawMatch, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})
	return sorted
}

func keepLongest(matches []RawMatch) []RawMatch {
	kept := make([]RawMatch, 0, len(matches))
	pos := -1
	for _, m := range byStartThenLongest(matches) {
		if m.Start < pos {
			continue
		}
		kept = append(kept, m)
		pos = m.End
	}
	return kept
}

func mergeOverlapping(text string, matches []RawMatch) []RawMatch {
	sorted := byStartThenLongest(matches)
	merged := make([]RawMatch, 0, len(sorted))
	// representative match of each merged group, same index as merged
	reps := make([]RawMatch, 0, len(sorted))

	for _, m := range sorted {
		if n := len(merged); n > 0 && m.Start < merged[n-1].End {
			group := &merged[n-1]
			if m.End > group.End {
				group.End = m.End
				group.Text = text[group.Start:group.End]
			}
			if outranks(m, reps[n-1]) {
				reps[n-1] = m
				group.Rule = m.Rule
			}
			continue
		}
		merged = append(merged, m)
		reps = append(reps, m)
	}
	return merged
}

// outranks reports whether candidate should represent a merged group in
// place of the current representative
func outranks(candidate, current RawMatch) bool {
	cr, rr := candidate.Rule.Severity.Rank(), current.Rule.Severity.Rank()
	if cr != rr {
		return cr > rr
	}
	cl, rl := candidate.End-candidate.Start, current.End-current.Start
	if cl != rl {
		return cl > rl
	}
	return candidate.Rule.ID < current.Rule.ID
}
