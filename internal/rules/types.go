package rules

import (
	"regexp"
	"strings"
)

// Severity is the ordinal classification of a rule, used for reporting only
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every severity from lowest to highest
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the ordinal of s, or -1 when s is not a known severity
func (s Severity) Rank() int {
	for i, known := range Severities {
		if s == known {
			return i
		}
	}
	return -1
}

// Action is the directive recorded with every incident a rule produces.
// The engine replaces the matched span for every action.
type Action string

const (
	ActionRedact Action = "REDACT"
	ActionBlock  Action = "BLOCK"
	ActionAlert  Action = "ALERT"
)

func isValidAction(action Action) bool {
	switch action {
	case ActionRedact, ActionBlock, ActionAlert:
		return true
	default:
		return false
	}
}

// Definition is the raw, uncompiled form of a rule as it appears in
// configuration files
type Definition struct {
	Pattern     string `yaml:"pattern" json:"pattern" mapstructure:"pattern"`
	Severity    string `yaml:"severity" json:"severity" mapstructure:"severity"`
	Action      string `yaml:"action" json:"action" mapstructure:"action"`
	Description string `yaml:"description" json:"description" mapstructure:"description"`
	Enabled     *bool  `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// IsEnabled reports whether the definition is enabled; absent means enabled
func (d Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Rule is a compiled, ready-to-match detection rule
type Rule struct {
	ID          string
	Pattern     *regexp.Regexp
	Severity    Severity
	Action      Action
	Description string
}

// Placeholder returns the text that replaces a span matched by r
func (r *Rule) Placeholder() string {
	return Placeholder(r.ID)
}

// Placeholder returns the redaction marker for a rule id
func Placeholder(ruleID string) string {
	return "[REDACTED_" + strings.ToUpper(ruleID) + "]"
}

// CanonicalID normalises a rule id. Configuration loaders lower-case map
// keys, so ids are compared in upper case.
func CanonicalID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Bool returns a pointer to b, for building definitions in code
func Bool(b bool) *bool {
	return &b
}
