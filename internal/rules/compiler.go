package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// matchFlags gives every pattern case-insensitive, multi-line semantics
const matchFlags = "(?im)"

// Merge overlays override on base and returns a new map. An override entry
// replaces the base entry with the same id as a whole; new ids are added.
// Neither input is modified.
func Merge(base, override map[string]Definition) map[string]Definition {
	merged := make(map[string]Definition, len(base)+len(override))
	for id, def := range base {
		merged[CanonicalID(id)] = def
	}
	for id, def := range override {
		merged[CanonicalID(id)] = def
	}
	return merged
}

// Compile turns raw definitions into a RuleSet. A definition that cannot be
// compiled is reported in the returned warnings and left out; compilation
// of the batch as a whole never fails. Disabled definitions are skipped
// without a warning.
func Compile(defs map[string]Definition) (*RuleSet, []error) {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var warnings []error
	compiled := make([]*Rule, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for _, rawID := range ids {
		def := defs[rawID]
		id := CanonicalID(rawID)
		if !def.IsEnabled() {
			continue
		}

		rule, err := compileOne(id, def)
		if err != nil {
			warnings = append(warnings, err)
			continue
		}
		if seen[id] {
			warnings = append(warnings, fmt.Errorf("rule %s: duplicate id after normalisation, keeping first", id))
			continue
		}
		seen[id] = true
		compiled = append(compiled, rule)
	}

	return newRuleSet(compiled), warnings
}

// compileOne validates and compiles a single definition
func compileOne(id string, def Definition) (*Rule, error) {
	if id == "" {
		return nil, fmt.Errorf("rule with empty id")
	}
	if strings.TrimSpace(def.Pattern) == "" {
		return nil, fmt.Errorf("rule %s: missing pattern", id)
	}

	severity := Severity(strings.ToUpper(strings.TrimSpace(def.Severity)))
	if severity.Rank() < 0 {
		return nil, fmt.Errorf("rule %s: invalid severity %q", id, def.Severity)
	}

	action := Action(strings.ToUpper(strings.TrimSpace(def.Action)))
	if !isValidAction(action) {
		return nil, fmt.Errorf("rule %s: invalid action %q", id, def.Action)
	}

	expr, err := regexp.Compile(matchFlags + def.Pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid pattern: %w", id, err)
	}

	return &Rule{
		ID:          id,
		Pattern:     expr,
		Severity:    severity,
		Action:      action,
		Description: def.Description,
	}, nil
}
