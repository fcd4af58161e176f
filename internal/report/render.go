package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raaihank/agi-sentinel/internal/rules"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	return table
}

// RenderIncidents writes one table row per incident
func RenderIncidents(w io.Writer, incidents []sentinel.Incident) {
	table := newTable(w, "INCIDENT", "THREAT", "SEVERITY", "ACTION", "SPAN", "VALUE")
	for _, incident := range incidents {
		view := View(incident)
		table.Append([]string{
			view.IncidentID,
			view.ThreatType,
			view.Severity,
			view.ActionTaken,
			fmt.Sprintf("%d-%d", incident.Start, incident.End),
			view.DetectedValue,
		})
	}
	table.Render()
}

// RenderRules writes the loaded rule catalogue
func RenderRules(w io.Writer, set *rules.RuleSet) {
	table := newTable(w, "RULE", "SEVERITY", "ACTION", "DESCRIPTION")
	set.Each(func(r *rules.Rule) bool {
		table.Append([]string{r.ID, string(r.Severity), string(r.Action), r.Description})
		return true
	})
	table.Render()
}

// RenderStatistics writes the aggregate counters
func RenderStatistics(w io.Writer, snapshot sentinel.Snapshot) {
	table := newTable(w, "METRIC", "VALUE")
	table.Append([]string{"total_scans", fmt.Sprint(snapshot.TotalScans)})
	table.Append([]string{"characters_processed", fmt.Sprint(snapshot.CharactersProcessed)})
	table.Append([]string{"threats_detected", fmt.Sprint(snapshot.ThreatsDetected)})
	for _, severity := range rules.Severities {
		table.Append([]string{"severity." + string(severity), fmt.Sprint(snapshot.BySeverity[severity])})
	}

	ids := make([]string, 0, len(snapshot.ByRule))
	for id := range snapshot.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		table.Append([]string{"rule." + id, fmt.Sprint(snapshot.ByRule[id])})
	}

	table.Append([]string{"uptime_seconds", fmt.Sprintf("%.1f", snapshot.UptimeSeconds)})
	table.Render()
}

// RenderCounts writes per-status scan counters in status order
func RenderCounts(w io.Writer, counts map[string]int64) {
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	table := newTable(w, "STATUS", "SCANS")
	for _, status := range statuses {
		table.Append([]string{status, fmt.Sprint(counts[status])})
	}
	table.Render()
}

// Diff renders the changes between original and processed text inline:
// removed text as [-...-] and inserted text as {+...+}
func Diff(original, processed string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, processed, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		}
	}
	return b.String()
}
