package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// Sink is an audit destination that may hold external resources
type Sink interface {
	sentinel.AuditSink
	io.Closer
}

// Record is the persisted form of an incident. The detected value itself
// never leaves the process; only its hash and length are stored.
type Record struct {
	IncidentID  string    `db:"incident_id" json:"incident_id"`
	ThreatType  string    `db:"threat_type" json:"threat_type"`
	Severity    string    `db:"severity" json:"severity"`
	ActionTaken string    `db:"action_taken" json:"action_taken"`
	ValueHash   string    `db:"value_hash" json:"value_hash"`
	ValueLength int       `db:"value_length" json:"value_length"`
	SpanStart   int       `db:"span_start" json:"span_start"`
	SpanEnd     int       `db:"span_end" json:"span_end"`
	DetectedAt  time.Time `db:"detected_at" json:"detected_at"`
}

// ScanEntry is the persisted summary of one scan
type ScanEntry struct {
	ScanID   string    `db:"scan_id" json:"scan_id"`
	Status   string    `db:"status" json:"status"`
	Threats  int       `db:"threats" json:"threats"`
	LoggedAt time.Time `db:"logged_at" json:"logged_at"`
}

// NewRecord converts an incident into its redacted storage form
func NewRecord(incident sentinel.Incident) Record {
	return Record{
		IncidentID:  incident.IncidentID,
		ThreatType:  incident.ThreatType,
		Severity:    string(incident.Severity),
		ActionTaken: string(incident.ActionTaken),
		ValueHash:   HashValue(incident.DetectedValue),
		ValueLength: utf8.RuneCountInString(incident.DetectedValue),
		SpanStart:   incident.Start,
		SpanEnd:     incident.End,
		DetectedAt:  incident.Timestamp,
	}
}

// HashValue returns the hex SHA-256 of a detected value
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// maskURL masks the password in a connection URL for logging
func maskURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
