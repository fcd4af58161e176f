package sentinel

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// contextRadius is the number of characters captured on each side of a match
const contextRadius = 50

// Redactor resolves overlapping matches, rewrites the text and emits one
// incident per rewritten span
type Redactor struct {
	policy OverlapPolicy
	stats  *Stats
	sink   AuditSink
	logger *zap.Logger
	now    func() time.Time
}

// NewRedactor creates a redactor. Nil dependencies fall back to no-ops.
func NewRedactor(policy OverlapPolicy, stats *Stats, sink AuditSink, logger *zap.Logger, clock func() time.Time) *Redactor {
	if clock == nil {
		clock = time.Now
	}
	if stats == nil {
		stats = NewStats(clock)
	}
	if sink == nil {
		sink = NopSink()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redactor{
		policy: policy,
		stats:  stats,
		sink:   sink,
		logger: logger,
		now:    clock,
	}
}

// Redact rewrites text, replacing every surviving match with its rule
// placeholder. Matches are applied from the rightmost start backwards so
// the offsets of matches further left stay valid. The returned incidents are
// in left-to-right document order.
func (r *Redactor) Redact(text string, matches []RawMatch) (string, []Incident) {
	ordered := r.policy.resolve(text, matches)
	current := text
	incidents := make([]Incident, 0, len(ordered))

	for _, m := range ordered {
		if m.Start < 0 || m.End > len(current) || m.Start >= m.End {
			r.logger.Warn("Skipping match with invalid offsets",
				zap.String("rule", m.Rule.ID),
				zap.Int("start", m.Start),
				zap.Int("end", m.End),
				zap.Int("text_length", len(current)),
			)
			continue
		}

		now := r.now()
		incident := Incident{
			IncidentID:    newID(incidentPrefix, now),
			ThreatType:    m.Rule.ID,
			Severity:      m.Rule.Severity,
			ActionTaken:   m.Rule.Action,
			DetectedValue: m.Text,
			Context:       contextWindow(current, m.Start, m.End, contextRadius),
			Start:         m.Start,
			End:           m.End,
			Timestamp:     now,
		}
		current = splice(current, m.Start, m.End, m.Rule.Placeholder())

		r.stats.RecordIncident(incident.Severity, incident.ThreatType)
		r.sink.LogIncident(incident)
		incidents = append(incidents, incident)
	}

	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].Start < incidents[j].Start
	})
	return current, incidents
}

// splice returns s with s[start:end] replaced by repl
func splice(s string, start, end int, repl string) string {
	var b strings.Builder
	b.Grow(len(s) - (end - start) + len(repl))
	b.WriteString(s[:start])
	b.WriteString(repl)
	b.WriteString(s[end:])
	return b.String()
}

// contextWindow returns s[start:end] widened by up to radius characters on
// each side, clamped to the bounds of s
func contextWindow(s string, start, end, radius int) string {
	from := start
	for i := 0; i < radius && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:from])
		from -= size
	}
	to := end
	for i := 0; i < radius && to < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[to:])
		to += size
	}
	return s[from:to]
}
