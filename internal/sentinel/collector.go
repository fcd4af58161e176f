package sentinel

import (
	"context"
	"strings"

	"github.com/raaihank/agi-sentinel/internal/rules"
)

// Collect runs every rule in set against text and returns all of their
// matches. Each rule contributes the non-overlapping, leftmost-first matches
// its own pattern yields. Empty and whitespace-only matches are dropped.
// The result is in rule order, then match order; callers must not rely on it.
func Collect(text string, set *rules.RuleSet) []RawMatch {
	matches, _ := collect(context.Background(), text, set)
	return matches
}

// collect is Collect with cancellation checked between rules
func collect(ctx context.Context, text string, set *rules.RuleSet) ([]RawMatch, error) {
	var matches []RawMatch
	var err error

	set.Each(func(rule *rules.Rule) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if strings.TrimSpace(value) == "" {
				continue
			}
			matches = append(matches, RawMatch{
				Text:  value,
				Rule:  rule,
				Start: loc[0],
				End:   loc[1],
			})
		}
		return true
	})

	return matches, err
}
