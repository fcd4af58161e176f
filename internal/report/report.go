package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/raaihank/agi-sentinel/internal/config"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// Tool is the name written into report metadata
const Tool = "AGI Sentinel DLP Shield"

const (
	valueLimit   = 50
	contextLimit = 100
)

// Metadata describes when and by what a report was produced
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	Tool        string    `json:"tool"`
	Version     string    `json:"version"`
}

// Configuration is the subset of settings worth recording in a report
type Configuration struct {
	OverlapPolicy string `json:"overlap_policy"`
	MaxWorkers    int    `json:"max_workers"`
	ScanTimeout   string `json:"scan_timeout,omitempty"`
	LogFile       string `json:"log_file,omitempty"`
}

// Report is the exported engine summary
type Report struct {
	Metadata      Metadata          `json:"metadata"`
	Statistics    sentinel.Snapshot `json:"statistics"`
	RulesLoaded   []string          `json:"rules_loaded"`
	Configuration Configuration     `json:"configuration"`
}

// Build assembles a report from the engine's current state
func Build(s *sentinel.Sentinel, cfg *config.Config, version string) Report {
	r := Report{
		Metadata: Metadata{
			GeneratedAt: time.Now(),
			Tool:        Tool,
			Version:     version,
		},
		Statistics:  s.Statistics(),
		RulesLoaded: s.RuleIDs(),
		Configuration: Configuration{
			OverlapPolicy: string(s.Policy()),
		},
	}

	if cfg != nil {
		r.Configuration.MaxWorkers = cfg.Engine.MaxWorkers
		if cfg.Engine.ScanTimeout > 0 {
			r.Configuration.ScanTimeout = cfg.Engine.ScanTimeout.String()
		}
		if cfg.Logging.File.Enabled {
			r.Configuration.LogFile = cfg.Logging.File.Path
		}
	}
	return r
}

// Export writes v as indented JSON, creating parent directories
func Export(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// IncidentView is the presentation form of an incident, with long values
// shortened
type IncidentView struct {
	IncidentID    string    `json:"incident_id"`
	ThreatType    string    `json:"threat_type"`
	Severity      string    `json:"severity"`
	DetectedValue string    `json:"detected_value"`
	Timestamp     time.Time `json:"timestamp"`
	ActionTaken   string    `json:"action_taken"`
	Context       string    `json:"context"`
}

// Summary is the presentation form of a scan result
type Summary struct {
	Status          sentinel.Status   `json:"status"`
	OriginalLength  int               `json:"original_length"`
	ProcessedLength int               `json:"processed_length"`
	ProcessedText   string            `json:"processed_text"`
	Incidents       []IncidentView    `json:"incidents"`
	IncidentsCount  int               `json:"incidents_count"`
	Metadata        sentinel.Metadata `json:"metadata"`
}

// Summarize converts a scan result into its presentation form
func Summarize(result sentinel.ScanResult) Summary {
	views := make([]IncidentView, 0, len(result.Incidents))
	for _, incident := range result.Incidents {
		views = append(views, View(incident))
	}

	return Summary{
		Status:          result.Status,
		OriginalLength:  utf8.RuneCountInString(result.OriginalText),
		ProcessedLength: utf8.RuneCountInString(result.ProcessedText),
		ProcessedText:   result.ProcessedText,
		Incidents:       views,
		IncidentsCount:  len(result.Incidents),
		Metadata:        result.Metadata,
	}
}

// View shortens an incident for display
func View(incident sentinel.Incident) IncidentView {
	return IncidentView{
		IncidentID:    incident.IncidentID,
		ThreatType:    incident.ThreatType,
		Severity:      string(incident.Severity),
		DetectedValue: Truncate(incident.DetectedValue, valueLimit),
		Timestamp:     incident.Timestamp,
		ActionTaken:   string(incident.ActionTaken),
		Context:       Truncate(incident.Context, contextLimit),
	}
}

// Truncate keeps the first limit characters of s and appends "..." when
// anything was cut
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
