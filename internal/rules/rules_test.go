package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogue(t *testing.T) {
	set, warnings := Compile(DefaultDefinitions())
	require.Empty(t, warnings)
	assert.Equal(t, 8, set.Len())

	for _, id := range []string{PIIEmail, PIICreditCard, PIIPhone, PIISSN, FinancialIBAN, SecretsAPIKey, AdversarialInjection, CodeInjection} {
		_, ok := set.Get(id)
		assert.True(t, ok, "missing default rule %s", id)
	}

	email, _ := set.Get(PIIEmail)
	assert.Equal(t, SeverityMedium, email.Severity)
	assert.Equal(t, ActionRedact, email.Action)

	injection, _ := set.Get(AdversarialInjection)
	assert.Equal(t, SeverityCritical, injection.Severity)
	assert.Equal(t, ActionBlock, injection.Action)
}

func TestCompile(t *testing.T) {
	t.Run("InvalidPatternIsExcludedNotFatal", func(t *testing.T) {
		defs := map[string]Definition{
			"GOOD": {Pattern: `foo`, Severity: "LOW", Action: "ALERT"},
			"BAD":  {Pattern: `([unclosed`, Severity: "LOW", Action: "ALERT"},
		}
		set, warnings := Compile(defs)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Error(), "BAD")
		assert.Equal(t, []string{"GOOD"}, set.IDs())
	})

	t.Run("MissingFieldsAreWarnings", func(t *testing.T) {
		defs := map[string]Definition{
			"NO_PATTERN":  {Severity: "LOW", Action: "ALERT"},
			"NO_SEVERITY": {Pattern: "x", Action: "ALERT"},
			"BAD_ACTION":  {Pattern: "x", Severity: "LOW", Action: "DELETE"},
		}
		set, warnings := Compile(defs)
		assert.Len(t, warnings, 3)
		assert.Zero(t, set.Len())
	})

	t.Run("DisabledRulesAreSkipped", func(t *testing.T) {
		defs := map[string]Definition{
			"ON":  {Pattern: "on", Severity: "LOW", Action: "ALERT"},
			"OFF": {Pattern: "off", Severity: "LOW", Action: "ALERT", Enabled: Bool(false)},
		}
		set, warnings := Compile(defs)
		assert.Empty(t, warnings)
		assert.Equal(t, []string{"ON"}, set.IDs())
	})

	t.Run("CaseInsensitiveMultiline", func(t *testing.T) {
		set, _ := Compile(map[string]Definition{
			"LINE": {Pattern: `^secret$`, Severity: "high", Action: "redact"},
		})
		rule, ok := set.Get("line")
		require.True(t, ok)
		assert.Equal(t, SeverityHigh, rule.Severity)
		assert.Len(t, rule.Pattern.FindAllString("one\nSECRET\nsecret", -1), 2)
	})

	t.Run("InputIsNotMutated", func(t *testing.T) {
		defs := map[string]Definition{"lower": {Pattern: "x", Severity: "low", Action: "alert"}}
		Compile(defs)
		assert.Equal(t, "low", defs["lower"].Severity)
		_, ok := defs["lower"]
		assert.True(t, ok)
	})
}

func TestMerge(t *testing.T) {
	base := DefaultDefinitions()
	override := map[string]Definition{
		"pii_email":   {Pattern: `@corp\.example`, Severity: "LOW", Action: "ALERT"},
		"CUSTOM_TERM": {Pattern: `project\s+falcon`, Severity: "HIGH", Action: "REDACT"},
		"pii_ssn":     {Pattern: `x`, Severity: "HIGH", Action: "REDACT", Enabled: Bool(false)},
	}

	merged := Merge(base, override)
	assert.Len(t, merged, 9)
	assert.Equal(t, "LOW", merged[PIIEmail].Severity)
	assert.Contains(t, merged, "CUSTOM_TERM")
	assert.Equal(t, "MEDIUM", base[PIIEmail].Severity, "base must not change")

	set, warnings := Compile(merged)
	assert.Empty(t, warnings)
	_, hasSSN := set.Get(PIISSN)
	assert.False(t, hasSSN)
	assert.Equal(t, 8, set.Len())
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "[REDACTED_PII_EMAIL]", Placeholder("PII_EMAIL"))
	assert.Equal(t, "[REDACTED_CUSTOM]", Placeholder("custom"))
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityCritical.Rank())
	assert.Equal(t, -1, Severity("EXTREME").Rank())
}

func TestRulesEvaluateInIDOrder(t *testing.T) {
	set, _ := Compile(DefaultDefinitions())

	var order []string
	set.Each(func(r *Rule) bool {
		order = append(order, r.ID)
		return true
	})
	assert.Equal(t, []string{
		AdversarialInjection, CodeInjection, FinancialIBAN, PIICreditCard,
		PIIEmail, PIIPhone, PIISSN, SecretsAPIKey,
	}, order)
}
