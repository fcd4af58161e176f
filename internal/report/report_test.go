package report

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/agi-sentinel/internal/config"
	"github.com/raaihank/agi-sentinel/internal/rules"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

func TestBuildAndExport(t *testing.T) {
	s := sentinel.Build(nil, sentinel.Options{})
	s.Scan("Contact alice@example.com")
	s.Scan("nothing to see")

	cfg := config.GetDefaults()
	cfg.Engine.ScanTimeout = time.Second
	r := Build(s, cfg, "1.2.3")

	assert.Equal(t, Tool, r.Metadata.Tool)
	assert.Equal(t, "1.2.3", r.Metadata.Version)
	assert.Equal(t, int64(2), r.Statistics.TotalScans)
	assert.Equal(t, int64(1), r.Statistics.ThreatsDetected)
	assert.Len(t, r.RulesLoaded, 8)
	assert.Equal(t, "longest", r.Configuration.OverlapPolicy)
	assert.Equal(t, "1s", r.Configuration.ScanTimeout)
	assert.Equal(t, "logs/sentinel_audit.log", r.Configuration.LogFile)

	path := filepath.Join(t.TempDir(), "nested", "report.json")
	require.NoError(t, Export(path, r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "metadata")
	assert.Contains(t, decoded, "statistics")
	assert.Contains(t, decoded, "rules_loaded")
	stats := decoded["statistics"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["total_scans"])
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("x", 60) + "@example.com"
	s := sentinel.Build(nil, sentinel.Options{})
	result := s.Scan("mail " + long + " " + strings.Repeat("y ", 60))
	require.Equal(t, sentinel.StatusShielded, result.Status)

	summary := Summarize(result)
	assert.Equal(t, len([]rune(result.OriginalText)), summary.OriginalLength)
	assert.Equal(t, len([]rune(result.ProcessedText)), summary.ProcessedLength)
	assert.Equal(t, 1, summary.IncidentsCount)
	require.Len(t, summary.Incidents, 1)

	view := summary.Incidents[0]
	assert.Equal(t, long[:50]+"...", view.DetectedValue)
	assert.True(t, strings.HasSuffix(view.Context, "..."))
	assert.Equal(t, 103, len([]rune(view.Context)))

	data, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "original_text")
	assert.Contains(t, string(data), `"incidents_count":1`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 50))
	assert.Equal(t, strings.Repeat("a", 50), Truncate(strings.Repeat("a", 50), 50))
	assert.Equal(t, "ééé...", Truncate("éééé", 3))
}

func TestWriteMetrics(t *testing.T) {
	s := sentinel.Build(nil, sentinel.Options{})
	s.Scan("a@b.io and c@d.io")
	s.Scan("card 4111111111111111")

	path := filepath.Join(t.TempDir(), "sentinel.prom")
	require.NoError(t, WriteMetrics(path, s.Statistics(), s.Rules()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "sentinel_scans_total 2")
	assert.Contains(t, text, "sentinel_characters_processed_total 38")
	assert.Contains(t, text, `sentinel_threats_total{rule="PII_EMAIL",severity="MEDIUM"} 2`)
	assert.Contains(t, text, `sentinel_threats_total{rule="PII_CREDIT_CARD",severity="HIGH"} 1`)
	assert.Contains(t, text, "sentinel_uptime_seconds")
}

func TestMetricsUnknownRule(t *testing.T) {
	snapshot := sentinel.Snapshot{ByRule: map[string]int64{"GONE": 4}}
	reg, err := Registry(snapshot, nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "sentinel_threats_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "severity" && label.GetValue() == "UNKNOWN" {
					found = true
					assert.Equal(t, float64(4), m.GetCounter().GetValue())
				}
			}
		}
	}
	assert.True(t, found)
}

func TestRender(t *testing.T) {
	s := sentinel.Build(nil, sentinel.Options{})
	result := s.Scan("mail alice@example.com")

	var buf bytes.Buffer
	RenderIncidents(&buf, result.Incidents)
	assert.Contains(t, buf.String(), "PII_EMAIL")
	assert.Contains(t, buf.String(), "alice@example.com")
	assert.Contains(t, buf.String(), "5-22")

	buf.Reset()
	RenderRules(&buf, s.Rules())
	for _, id := range s.RuleIDs() {
		assert.Contains(t, buf.String(), id)
	}

	buf.Reset()
	RenderStatistics(&buf, s.Statistics())
	assert.Contains(t, buf.String(), "rule.PII_EMAIL")
	assert.Contains(t, buf.String(), "severity."+string(rules.SeverityCritical))

	buf.Reset()
	RenderCounts(&buf, map[string]int64{"SHIELDED": 7, "SECURE": 12})
	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "12")
	assert.Less(t, strings.Index(out, "SECURE"), strings.Index(out, "SHIELDED"))
}

var (
	deleted  = regexp.MustCompile(`(?s)\[-(.*?)-\]`)
	inserted = regexp.MustCompile(`(?s)\{\+(.*?)\+\}`)
)

func TestDiff(t *testing.T) {
	assert.Equal(t, "unchanged", Diff("unchanged", "unchanged"))

	original := "mail alice@example.com now"
	processed := "mail [REDACTED_PII_EMAIL] now"
	diff := Diff(original, processed)
	assert.NotEqual(t, original, diff)

	// dropping insertions restores the original; dropping deletions the result
	asOriginal := deleted.ReplaceAllString(inserted.ReplaceAllString(diff, ""), "$1")
	asProcessed := inserted.ReplaceAllString(deleted.ReplaceAllString(diff, ""), "$1")
	assert.Equal(t, original, asOriginal)
	assert.Equal(t, processed, asProcessed)
}
