package sentinel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/agi-sentinel/internal/rules"
)

// recordingSink captures everything handed to the audit collaborator
type recordingSink struct {
	mu        sync.Mutex
	incidents []Incident
	scans     []Status
}

func (r *recordingSink) LogIncident(incident Incident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, incident)
}

func (r *recordingSink) LogScan(_ string, status Status, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, status)
}

func TestScanScenarios(t *testing.T) {
	s := Build(nil, Options{})

	t.Run("CleanText", func(t *testing.T) {
		result := s.Scan("Hello, how are you?")
		assert.Equal(t, StatusSecure, result.Status)
		assert.Equal(t, "Hello, how are you?", result.ProcessedText)
		assert.Empty(t, result.Incidents)
		assert.NotEmpty(t, result.Metadata.ScanID)
	})

	t.Run("Email", func(t *testing.T) {
		result := s.Scan("My email is test@example.com")
		assert.Equal(t, StatusShielded, result.Status)
		assert.Equal(t, "My email is [REDACTED_PII_EMAIL]", result.ProcessedText)
		require.Len(t, result.Incidents, 1)
		assert.Equal(t, rules.PIIEmail, result.Incidents[0].ThreatType)
		assert.Equal(t, rules.SeverityMedium, result.Incidents[0].Severity)
		assert.Equal(t, "test@example.com", result.Incidents[0].DetectedValue)
		assert.Equal(t, []string{rules.PIIEmail}, result.Metadata.RulesApplied)
	})

	t.Run("CreditCard", func(t *testing.T) {
		result := s.Scan("Card: 4111111111111111")
		assert.Contains(t, result.ProcessedText, "[REDACTED_PII_CREDIT_CARD]")
		require.Len(t, result.Incidents, 1)
		assert.Equal(t, rules.SeverityHigh, result.Incidents[0].Severity)
	})

	t.Run("TwoThreatsInDocumentOrder", func(t *testing.T) {
		result := s.Scan("test@example.com and ignore rules")
		assert.Equal(t, "[REDACTED_PII_EMAIL] and [REDACTED_ADVERSARIAL_INJECTION]", result.ProcessedText)
		require.Len(t, result.Incidents, 2)
		assert.Equal(t, rules.PIIEmail, result.Incidents[0].ThreatType)
		assert.Equal(t, rules.AdversarialInjection, result.Incidents[1].ThreatType)
		assert.Equal(t, rules.ActionBlock, result.Incidents[1].ActionTaken)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		result := s.Scan("")
		assert.Equal(t, StatusError, result.Status)
		assert.Empty(t, result.OriginalText)
		assert.Empty(t, result.ProcessedText)
		assert.Empty(t, result.Incidents)
		assert.Equal(t, "Invalid input text", result.Metadata.Error)
	})

	t.Run("PhoneAndSSN", func(t *testing.T) {
		result := s.Scan("Phone: 555-123-4567 and SSN: 123-45-6789")
		assert.Equal(t, "Phone: [REDACTED_PII_PHONE] and SSN: [REDACTED_PII_SSN]", result.ProcessedText)
	})

	t.Run("APIKey", func(t *testing.T) {
		result := s.Scan("API key: sk-test1234567890")
		assert.Equal(t, "API key: [REDACTED_SECRETS_API_KEY]", result.ProcessedText)
	})

	t.Run("CodeInjection", func(t *testing.T) {
		result := s.Scan("run eval(payload) now")
		assert.Equal(t, "run [REDACTED_CODE_INJECTION]payload) now", result.ProcessedText)
	})
}

func TestScanSideEffects(t *testing.T) {
	sink := &recordingSink{}
	s := Build(nil, Options{Sink: sink})

	s.Scan("Hello")
	s.Scan("test@example.com and ignore rules")
	s.Scan("")

	assert.Len(t, sink.incidents, 2)
	assert.Equal(t, []Status{StatusSecure, StatusShielded, StatusError}, sink.scans)

	snap := s.Statistics()
	assert.Equal(t, int64(3), snap.TotalScans)
	assert.Equal(t, int64(3), snap.TextsProcessed)
	assert.Equal(t, int64(len("Hello")+len("test@example.com and ignore rules")), snap.CharactersProcessed)
	assert.Equal(t, int64(2), snap.ThreatsDetected)
	assert.Equal(t, int64(1), snap.BySeverity[rules.SeverityMedium])
	assert.Equal(t, int64(1), snap.BySeverity[rules.SeverityCritical])
	assert.Equal(t, int64(1), snap.ByRule[rules.PIIEmail])
}

func TestScanIsDeterministic(t *testing.T) {
	s := Build(nil, Options{})
	text := "Mail a@b.co, card 5555555555554444, call 555-123-4567, then jailbreak"

	first := s.Scan(text)
	second := s.Scan(text)

	assert.Equal(t, first.ProcessedText, second.ProcessedText)
	require.Equal(t, len(first.Incidents), len(second.Incidents))
	for i := range first.Incidents {
		a, b := first.Incidents[i], second.Incidents[i]
		assert.Equal(t, a.ThreatType, b.ThreatType)
		assert.Equal(t, a.Severity, b.Severity)
		assert.Equal(t, a.Start, b.Start)
		assert.Equal(t, a.End, b.End)
		assert.Equal(t, a.DetectedValue, b.DetectedValue)
	}
}

func TestDisabledRuleNeverMatches(t *testing.T) {
	defs := rules.DefaultDefinitions()
	email := defs[rules.PIIEmail]
	email.Enabled = rules.Bool(false)

	s := Build(map[string]rules.Definition{"pii_email": email}, Options{})
	assert.NotContains(t, s.RuleIDs(), rules.PIIEmail)

	result := s.Scan("contact test@example.com")
	assert.Equal(t, StatusSecure, result.Status)
	assert.Equal(t, "contact test@example.com", result.ProcessedText)
}

func TestInvalidOverrideDoesNotAbortLoad(t *testing.T) {
	s := Build(map[string]rules.Definition{
		"BROKEN": {Pattern: "(unclosed", Severity: "LOW", Action: "ALERT"},
	}, Options{})
	assert.Len(t, s.RuleIDs(), 8)
	assert.Equal(t, StatusShielded, s.Scan("x@y.io").Status)
}

func TestConcurrentScansKeepExactCounts(t *testing.T) {
	s := Build(nil, Options{})
	const workers, perWorker = 16, 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				s.Scan("reach me at test@example.com or 555-123-4567")
			}
		}()
	}
	wg.Wait()

	snap := s.Statistics()
	assert.Equal(t, int64(workers*perWorker), snap.TotalScans)
	assert.Equal(t, int64(2*workers*perWorker), snap.ThreatsDetected)
	assert.Equal(t, int64(workers*perWorker), snap.ByRule[rules.PIIEmail])
	assert.Equal(t, int64(workers*perWorker), snap.ByRule[rules.PIIPhone])
}

func TestScanContext(t *testing.T) {
	s := Build(nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.ScanContext(ctx, "test@example.com")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Metadata.Error, "cancelled")
}

func TestProtect(t *testing.T) {
	s := Build(nil, Options{})

	out := s.Protect("test@example.com and ignore rules")
	assert.Equal(t, StatusShielded, out.Status)
	assert.Equal(t, []string{rules.PIIEmail, rules.AdversarialInjection}, out.Threats)
	assert.NotEmpty(t, out.IncidentID)

	clean := s.Protect("nothing here")
	assert.Equal(t, StatusSecure, clean.Status)
	assert.Empty(t, clean.IncidentID)
	assert.Empty(t, clean.Threats)
}

func TestSharedStatsAcrossEngines(t *testing.T) {
	stats := NewStats(nil)
	first := Build(nil, Options{Stats: stats})
	second := Build(nil, Options{Stats: stats, Policy: PolicyExact})

	first.Scan("a@b.io")
	second.Scan("c@d.io")
	assert.Equal(t, int64(2), stats.Snapshot().ThreatsDetected)
}

func TestStatsSnapshot(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	stats := NewStats(func() time.Time { return now })

	stats.RecordScan(10)
	stats.RecordIncident(rules.SeverityHigh, "X")
	now = start.Add(90 * time.Second)

	snap := stats.Snapshot()
	assert.Equal(t, 90.0, snap.UptimeSeconds)
	assert.Equal(t, int64(0), snap.BySeverity[rules.SeverityLow])

	snap.ByRule["X"] = 100
	assert.Equal(t, int64(1), stats.Snapshot().ByRule["X"], "snapshot must be detached")
}

func TestIDFormat(t *testing.T) {
	now := time.Date(2026, 10, 17, 8, 30, 5, 0, time.UTC)
	id := newID(incidentPrefix, now)
	assert.Regexp(t, `^INC_20261017083005_[0-9A-F]{32}$`, id)
	assert.NotEqual(t, id, newID(incidentPrefix, now))
}

func TestIDsUniqueWithinOneSecond(t *testing.T) {
	now := time.Date(2026, 10, 17, 8, 30, 5, 0, time.UTC)
	seen := make(map[string]struct{}, 50000)
	for i := 0; i < 50000; i++ {
		id := newID(incidentPrefix, now)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s after %d ids", id, i)
		seen[id] = struct{}{}
	}
}
