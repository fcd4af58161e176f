package sentinel

import (
	"sync"
	"time"

	"github.com/raaihank/agi-sentinel/internal/rules"
)

// Stats holds aggregate counters for one engine. All mutation and reads go
// through a single mutex, so totals stay exact under concurrent scans.
type Stats struct {
	mu                  sync.Mutex
	totalScans          int64
	textsProcessed      int64
	charactersProcessed int64
	threatsDetected     int64
	bySeverity          map[rules.Severity]int64
	byRule              map[string]int64
	startTime           time.Time
	now                 func() time.Time
}

// Snapshot is a consistent, detached copy of Stats
type Snapshot struct {
	TotalScans          int64                    `json:"total_scans"`
	TextsProcessed      int64                    `json:"texts_processed"`
	CharactersProcessed int64                    `json:"characters_processed"`
	ThreatsDetected     int64                    `json:"threats_detected"`
	BySeverity          map[rules.Severity]int64 `json:"by_severity"`
	ByRule              map[string]int64         `json:"by_rule"`
	StartTime           time.Time                `json:"start_time"`
	UptimeSeconds       float64                  `json:"uptime_seconds"`
}

// NewStats creates an empty registry. A nil clock means time.Now.
func NewStats(clock func() time.Time) *Stats {
	if clock == nil {
		clock = time.Now
	}
	bySeverity := make(map[rules.Severity]int64, len(rules.Severities))
	for _, severity := range rules.Severities {
		bySeverity[severity] = 0
	}
	return &Stats{
		bySeverity: bySeverity,
		byRule:     make(map[string]int64),
		startTime:  clock(),
		now:        clock,
	}
}

// RecordScan counts one scanned text of the given length in characters
func (s *Stats) RecordScan(characters int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalScans++
	s.textsProcessed++
	s.charactersProcessed += int64(characters)
}

// RecordIncident counts one detection
func (s *Stats) RecordIncident(severity rules.Severity, ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threatsDetected++
	s.bySeverity[severity]++
	s.byRule[ruleID]++
}

// Snapshot returns a copy of the counters with uptime computed now
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySeverity := make(map[rules.Severity]int64, len(s.bySeverity))
	for k, v := range s.bySeverity {
		bySeverity[k] = v
	}
	byRule := make(map[string]int64, len(s.byRule))
	for k, v := range s.byRule {
		byRule[k] = v
	}

	return Snapshot{
		TotalScans:          s.totalScans,
		TextsProcessed:      s.textsProcessed,
		CharactersProcessed: s.charactersProcessed,
		ThreatsDetected:     s.threatsDetected,
		BySeverity:          bySeverity,
		ByRule:              byRule,
		StartTime:           s.startTime,
		UptimeSeconds:       s.now().Sub(s.startTime).Seconds(),
	}
}
