package sentinel

import (
	"time"

	"github.com/raaihank/agi-sentinel/internal/rules"
)

// Status is the outcome of a single scan
type Status string

const (
	// StatusSecure means no rule matched and the text is unchanged
	StatusSecure Status = "SECURE"
	// StatusShielded means at least one span was redacted
	StatusShielded Status = "SHIELDED"
	// StatusError means the input could not be scanned
	StatusError Status = "ERROR"
)

// RawMatch is one pattern hit before overlap resolution
type RawMatch struct {
	Text  string
	Rule  *rules.Rule
	Start int
	End   int
}

// Incident is a single resolved detection
type Incident struct {
	IncidentID    string         `json:"incident_id"`
	ThreatType    string         `json:"threat_type"`
	Severity      rules.Severity `json:"severity"`
	ActionTaken   rules.Action   `json:"action_taken"`
	DetectedValue string         `json:"detected_value"`
	Context       string         `json:"context"`
	Start         int            `json:"start"`
	End           int            `json:"end"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Metadata describes a scan
type Metadata struct {
	ScanID       string    `json:"scan_id"`
	Timestamp    time.Time `json:"timestamp"`
	ThreatsCount int       `json:"threats_count"`
	RulesApplied []string  `json:"rules_applied,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// ScanResult is the complete output of one scan
type ScanResult struct {
	Status        Status     `json:"status"`
	OriginalText  string     `json:"-"`
	ProcessedText string     `json:"processed_text"`
	Incidents     []Incident `json:"incidents"`
	Metadata      Metadata   `json:"metadata"`
}

// ProtectResult is the compact result shape used by older callers
type ProtectResult struct {
	Status     Status   `json:"status"`
	Output     string   `json:"output"`
	IncidentID string   `json:"incident_id,omitempty"`
	Threats    []string `json:"threats"`
}

// AuditSink receives incidents and scan summaries as they are produced.
// Implementations must be safe for concurrent use and must not block for
// long; a scan waits for each call to return.
type AuditSink interface {
	LogIncident(incident Incident)
	LogScan(scanID string, status Status, threats int)
}

type nopSink struct{}

func (nopSink) LogIncident(Incident)        {}
func (nopSink) LogScan(string, Status, int) {}

// NopSink returns an AuditSink that discards everything
func NopSink() AuditSink { return nopSink{} }
