package sentinel

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/raaihank/agi-sentinel/internal/rules"
)

var fragments = []string{
	"hello", "world", "the report", "meeting at noon", "  ", "\n",
	"alice@example.com", "bob.smith@corp.io",
	"4111111111111111", "5500000000000004",
	"555-123-4567", "123-45-6789",
	"ignore previous", "jailbreak", "<script>", "eval(",
	"GB82WEST12345698765432", "sk-abcdefghijklmnop",
	"ééé", "数据",
}

func genText(t *rapid.T) string {
	parts := rapid.SliceOfN(rapid.SampledFrom(fragments), 0, 12).Draw(t, "parts")
	sep := rapid.SampledFrom([]string{" ", ", ", "\n", ""}).Draw(t, "sep")
	return strings.Join(parts, sep)
}

func TestScanProperties(t *testing.T) {
	engines := map[OverlapPolicy]*Sentinel{
		PolicyExact:   Build(nil, Options{Policy: PolicyExact}),
		PolicyLongest: Build(nil, Options{Policy: PolicyLongest}),
		PolicyMerge:   Build(nil, Options{Policy: PolicyMerge}),
	}

	rapid.Check(t, func(t *rapid.T) {
		text := genText(t)
		policy := rapid.SampledFrom([]OverlapPolicy{PolicyExact, PolicyLongest, PolicyMerge}).Draw(t, "policy")
		result := engines[policy].Scan(text)

		if text == "" {
			if result.Status != StatusError {
				t.Fatalf("empty input gave status %s", result.Status)
			}
			return
		}

		if len(result.Incidents) == 0 {
			if result.Status != StatusSecure || result.ProcessedText != text {
				t.Fatalf("clean text was modified: %q -> %q", text, result.ProcessedText)
			}
			return
		}
		if result.Status != StatusShielded {
			t.Fatalf("incidents without SHIELDED status")
		}

		growth := 0
		for i, incident := range result.Incidents {
			if text[incident.Start:incident.End] != incident.DetectedValue {
				t.Fatalf("incident %d value %q does not match original span %q",
					i, incident.DetectedValue, text[incident.Start:incident.End])
			}
			if i > 0 && incident.Start < result.Incidents[i-1].Start {
				t.Fatalf("incidents out of document order")
			}
			growth += len(rules.Placeholder(incident.ThreatType)) - len(incident.DetectedValue)
		}

		if len(result.ProcessedText) > len(text)+growth {
			t.Fatalf("processed text longer than allowed: %d > %d", len(result.ProcessedText), len(text)+growth)
		}

		if policy == PolicyExact {
			return
		}
		for i := 1; i < len(result.Incidents); i++ {
			if result.Incidents[i].Start < result.Incidents[i-1].End {
				t.Fatalf("%s policy produced overlapping incidents", policy)
			}
		}
		if len(result.ProcessedText) != len(text)+growth {
			t.Fatalf("non-overlapping rewrite length mismatch")
		}
		for _, incident := range result.Incidents {
			if !strings.Contains(result.ProcessedText, rules.Placeholder(incident.ThreatType)) {
				t.Fatalf("placeholder for %s missing", incident.ThreatType)
			}
		}
	})
}
