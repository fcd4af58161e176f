package audit

import (
	"go.uber.org/zap"

	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// LogSink writes incidents and scan summaries to a zap logger
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink on the given logger
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "audit"))}
}

// LogIncident logs one incident at warn level
func (s *LogSink) LogIncident(incident sentinel.Incident) {
	s.logger.Warn("Security incident",
		zap.String("incident_id", incident.IncidentID),
		zap.String("threat_type", incident.ThreatType),
		zap.String("severity", string(incident.Severity)),
		zap.String("action", string(incident.ActionTaken)),
		zap.Int("start", incident.Start),
		zap.Int("end", incident.End),
	)
}

// LogScan logs a scan summary at info level
func (s *LogSink) LogScan(scanID string, status sentinel.Status, threats int) {
	s.logger.Info("Scan completed",
		zap.String("scan_id", scanID),
		zap.String("status", string(status)),
		zap.Int("threats", threats),
	)
}

// Close flushes the logger
func (s *LogSink) Close() error {
	_ = s.logger.Sync()
	return nil
}
