package config

import (
	"time"

	"github.com/raaihank/agi-sentinel/internal/rules"
)

// Config represents the main configuration structure
type Config struct {
	Engine  EngineConfig                `yaml:"engine" mapstructure:"engine"`
	Rules   map[string]rules.Definition `yaml:"security_rules" mapstructure:"-"`
	Logging LoggingConfig               `yaml:"logging" mapstructure:"logging"`
	Audit   AuditConfig                 `yaml:"audit" mapstructure:"audit"`
	Bulk    BulkConfig                  `yaml:"bulk" mapstructure:"bulk"`
	Report  ReportConfig                `yaml:"report" mapstructure:"report"`

	// RuleWarnings lists security_rules entries that could not be decoded
	// and were left out
	RuleWarnings []error `yaml:"-" mapstructure:"-"`
}

// EngineConfig contains scan engine configuration
type EngineConfig struct {
	OverlapPolicy string        `yaml:"overlap_policy" mapstructure:"overlap_policy"` // exact, longest, or merge
	ScanTimeout   time.Duration `yaml:"scan_timeout" mapstructure:"scan_timeout"`
	MaxWorkers    int           `yaml:"max_workers" mapstructure:"max_workers"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
		Path       string `yaml:"path" mapstructure:"path"`
		MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
		MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
		Compress   bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// AuditConfig contains external audit sink configuration
type AuditConfig struct {
	Redis    RedisAuditConfig    `yaml:"redis" mapstructure:"redis"`
	Postgres PostgresAuditConfig `yaml:"postgres" mapstructure:"postgres"`
}

// RedisAuditConfig configures the Redis incident stream
type RedisAuditConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	URL          string        `yaml:"url" mapstructure:"url"`
	KeyPrefix    string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	StreamMaxLen int64         `yaml:"stream_max_len" mapstructure:"stream_max_len"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PostgresAuditConfig configures the Postgres incident store
type PostgresAuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// BulkConfig contains tabular bulk scanning configuration
type BulkConfig struct {
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	RowsPerSecond int    `yaml:"rows_per_second" mapstructure:"rows_per_second"`
	OutputSuffix  string `yaml:"output_suffix" mapstructure:"output_suffix"`
}

// ReportConfig contains report export configuration. Empty paths disable
// the corresponding output.
type ReportConfig struct {
	Output      string `yaml:"output" mapstructure:"output"`
	MetricsFile string `yaml:"metrics_file" mapstructure:"metrics_file"`
}

// MaxWorkerLimit caps the number of parallel scan workers
const MaxWorkerLimit = 16

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Engine: EngineConfig{
			OverlapPolicy: "longest",
			MaxWorkers:    4,
		},
		Rules: map[string]rules.Definition{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Audit: AuditConfig{
			Redis: RedisAuditConfig{
				URL:          "redis://localhost:6379/0",
				KeyPrefix:    "sentinel",
				StreamMaxLen: 10000,
				PoolSize:     10,
				Timeout:      2 * time.Second,
			},
			Postgres: PostgresAuditConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				Timeout:         5 * time.Second,
			},
		},
		Bulk: BulkConfig{
			BatchSize:    500,
			Workers:      4,
			OutputSuffix: "_shielded",
		},
	}

	cfg.Logging.File.Enabled = true
	cfg.Logging.File.Path = "logs/sentinel_audit.log"
	cfg.Logging.File.MaxSize = 10 // MB
	cfg.Logging.File.MaxAge = 30  // days
	cfg.Logging.File.MaxBackups = 10
	cfg.Logging.File.Compress = false

	return cfg
}
