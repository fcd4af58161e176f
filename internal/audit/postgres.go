package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/agi-sentinel/internal/config"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

const schema = `
CREATE TABLE IF NOT EXISTS security_incidents (
	incident_id  TEXT PRIMARY KEY,
	threat_type  TEXT NOT NULL,
	severity     TEXT NOT NULL,
	action_taken TEXT NOT NULL,
	value_hash   TEXT NOT NULL,
	value_length INTEGER NOT NULL,
	span_start   INTEGER NOT NULL,
	span_end     INTEGER NOT NULL,
	detected_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_security_incidents_detected_at ON security_incidents (detected_at DESC);
CREATE TABLE IF NOT EXISTS scan_log (
	scan_id   TEXT PRIMARY KEY,
	status    TEXT NOT NULL,
	threats   INTEGER NOT NULL,
	logged_at TIMESTAMPTZ NOT NULL
);`

const insertIncident = `
	INSERT INTO security_incidents
		(incident_id, threat_type, severity, action_taken, value_hash, value_length, span_start, span_end, detected_at)
	VALUES
		(:incident_id, :threat_type, :severity, :action_taken, :value_hash, :value_length, :span_start, :span_end, :detected_at)
	ON CONFLICT (incident_id) DO NOTHING`

const insertScan = `
	INSERT INTO scan_log (scan_id, status, threats, logged_at)
	VALUES (:scan_id, :status, :threats, :logged_at)
	ON CONFLICT (scan_id) DO NOTHING`

// PostgresSink stores incidents and scan summaries in PostgreSQL
type PostgresSink struct {
	db     *sqlx.DB
	config config.PostgresAuditConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresSink connects to the database, configures the pool and
// creates the audit tables if they do not exist
func NewPostgresSink(cfg config.PostgresAuditConfig, logger *zap.Logger) (*PostgresSink, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	sink := newPostgresSink(db, cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*sink.timeout())
	defer cancel()

	if err := sink.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	sink.logger.Info("Postgres audit sink initialized",
		zap.String("database_url", maskURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return sink, nil
}

func newPostgresSink(db *sqlx.DB, cfg config.PostgresAuditConfig, logger *zap.Logger) *PostgresSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSink{
		db:     db,
		config: cfg,
		logger: logger.With(zap.String("component", "audit.postgres")),
		now:    time.Now,
	}
}

func (s *PostgresSink) timeout() time.Duration {
	if s.config.Timeout > 0 {
		return s.config.Timeout
	}
	return 5 * time.Second
}

// EnsureSchema creates the audit tables
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// LogIncident stores the redacted record. Failures are logged.
func (s *PostgresSink) LogIncident(incident sentinel.Incident) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, insertIncident, NewRecord(incident)); err != nil {
		s.logger.Error("Failed to store incident",
			zap.String("incident_id", incident.IncidentID),
			zap.String("threat_type", incident.ThreatType),
			zap.Error(err))
	}
}

// LogScan stores the scan summary. Failures are logged.
func (s *PostgresSink) LogScan(scanID string, status sentinel.Status, threats int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	entry := ScanEntry{
		ScanID:   scanID,
		Status:   string(status),
		Threats:  threats,
		LoggedAt: s.now().UTC(),
	}
	if _, err := s.db.NamedExecContext(ctx, insertScan, entry); err != nil {
		s.logger.Error("Failed to store scan summary",
			zap.String("scan_id", scanID),
			zap.Error(err))
	}
}

// RecentIncidents returns the newest stored incidents, newest first
func (s *PostgresSink) RecentIncidents(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT incident_id, threat_type, severity, action_taken, value_hash,
			value_length, span_start, span_end, detected_at
		FROM security_incidents
		ORDER BY detected_at DESC, incident_id
		LIMIT $1`

	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (s *PostgresSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
