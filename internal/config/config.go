package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/raaihank/agi-sentinel/internal/rules"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// Loader reads configuration from file and environment variables
type Loader struct {
	v      *viper.Viper
	logger *zap.Logger
	mu     sync.Mutex
}

// NewLoader creates a loader for the given config file. An empty path
// searches the default locations for config.yaml.
func NewLoader(configPath string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/agi-sentinel/")
	v.AddConfigPath("$HOME/.agi-sentinel/")

	// Environment variable overrides
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	registerDefaults(v, GetDefaults())

	return &Loader{v: v, logger: logger}
}

// Load loads configuration with the default search paths
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath, nil).Load()
}

// Load reads, decodes and validates the configuration
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		l.logger.Debug("No config file found, using defaults")
	} else {
		l.logger.Debug("Loaded config file", zap.String("path", l.v.ConfigFileUsed()))
	}

	return l.decode()
}

// ConfigFileUsed returns the path of the file that was read, if any
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()
	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Rules, config.RuleWarnings = decodeRules(l.v.Get("security_rules"))
	for _, w := range config.RuleWarnings {
		l.logger.Warn("Rule definition skipped", zap.Error(w))
	}

	normalize(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Watch starts watching the configuration file for changes. The callback
// receives only configurations that decode and validate.
func (l *Loader) Watch(callback func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		newConfig, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			l.logger.Warn("Ignoring invalid configuration change",
				zap.String("file", e.Name),
				zap.Error(err),
			)
			return
		}

		l.logger.Info("Configuration reloaded", zap.String("file", e.Name))
		callback(newConfig)
	})
	l.v.WatchConfig()
}

// decodeRules decodes the security_rules section one entry at a time. An
// entry that does not decode is reported and skipped; the rest are kept.
func decodeRules(raw interface{}) (map[string]rules.Definition, []error) {
	defs := make(map[string]rules.Definition)
	if raw == nil {
		return defs, nil
	}

	entries, ok := raw.(map[string]interface{})
	if !ok {
		return defs, []error{fmt.Errorf("security_rules: expected a mapping, got %T", raw)}
	}

	var warnings []error
	for id, entry := range entries {
		var def rules.Definition
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &def,
			WeaklyTypedInput: true,
		})
		if err == nil {
			err = decoder.Decode(entry)
		}
		if err != nil {
			warnings = append(warnings, fmt.Errorf("rule %s: %w", rules.CanonicalID(id), err))
			continue
		}
		defs[id] = def
	}
	return defs, warnings
}

// normalize canonicalizes rule ids and clamps worker counts
func normalize(config *Config) {
	// viper lower-cases map keys
	canonical := make(map[string]rules.Definition, len(config.Rules))
	for id, def := range config.Rules {
		canonical[rules.CanonicalID(id)] = def
	}
	config.Rules = canonical

	config.Engine.OverlapPolicy = strings.ToLower(strings.TrimSpace(config.Engine.OverlapPolicy))
	config.Engine.MaxWorkers = ClampWorkers(config.Engine.MaxWorkers)
	config.Bulk.Workers = ClampWorkers(config.Bulk.Workers)
}

// ClampWorkers bounds a worker count to [1, MaxWorkerLimit]
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWorkerLimit {
		return MaxWorkerLimit
	}
	return n
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if _, err := sentinel.ParsePolicy(config.Engine.OverlapPolicy); err != nil {
		return err
	}

	if config.Engine.ScanTimeout < 0 {
		return fmt.Errorf("invalid scan timeout: %s", config.Engine.ScanTimeout)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Logging.File.Enabled && config.Logging.File.Path == "" {
		return fmt.Errorf("log file enabled without a path")
	}

	if config.Bulk.BatchSize <= 0 {
		return fmt.Errorf("invalid bulk batch size: %d", config.Bulk.BatchSize)
	}

	if config.Bulk.RowsPerSecond < 0 {
		return fmt.Errorf("invalid bulk rows per second: %d", config.Bulk.RowsPerSecond)
	}

	if config.Bulk.OutputSuffix == "" {
		return fmt.Errorf("bulk output suffix must not be empty")
	}

	if config.Audit.Redis.Enabled && config.Audit.Redis.URL == "" {
		return fmt.Errorf("redis audit enabled without a url")
	}

	if config.Audit.Postgres.Enabled && config.Audit.Postgres.DatabaseURL == "" {
		return fmt.Errorf("postgres audit enabled without a database_url")
	}

	return nil
}

// registerDefaults makes every scalar key known to viper so that
// SENTINEL_* environment variables apply without a config file
func registerDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("engine.overlap_policy", d.Engine.OverlapPolicy)
	v.SetDefault("engine.scan_timeout", d.Engine.ScanTimeout)
	v.SetDefault("engine.max_workers", d.Engine.MaxWorkers)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)
	v.SetDefault("logging.file.max_size", d.Logging.File.MaxSize)
	v.SetDefault("logging.file.max_age", d.Logging.File.MaxAge)
	v.SetDefault("logging.file.max_backups", d.Logging.File.MaxBackups)
	v.SetDefault("logging.file.compress", d.Logging.File.Compress)

	v.SetDefault("audit.redis.enabled", d.Audit.Redis.Enabled)
	v.SetDefault("audit.redis.url", d.Audit.Redis.URL)
	v.SetDefault("audit.redis.key_prefix", d.Audit.Redis.KeyPrefix)
	v.SetDefault("audit.redis.stream_max_len", d.Audit.Redis.StreamMaxLen)
	v.SetDefault("audit.redis.pool_size", d.Audit.Redis.PoolSize)
	v.SetDefault("audit.redis.timeout", d.Audit.Redis.Timeout)

	v.SetDefault("audit.postgres.enabled", d.Audit.Postgres.Enabled)
	v.SetDefault("audit.postgres.database_url", d.Audit.Postgres.DatabaseURL)
	v.SetDefault("audit.postgres.max_open_conns", d.Audit.Postgres.MaxOpenConns)
	v.SetDefault("audit.postgres.max_idle_conns", d.Audit.Postgres.MaxIdleConns)
	v.SetDefault("audit.postgres.conn_max_lifetime", d.Audit.Postgres.ConnMaxLifetime)
	v.SetDefault("audit.postgres.timeout", d.Audit.Postgres.Timeout)

	v.SetDefault("bulk.batch_size", d.Bulk.BatchSize)
	v.SetDefault("bulk.workers", d.Bulk.Workers)
	v.SetDefault("bulk.rows_per_second", d.Bulk.RowsPerSecond)
	v.SetDefault("bulk.output_suffix", d.Bulk.OutputSuffix)

	v.SetDefault("report.output", d.Report.Output)
	v.SetDefault("report.metrics_file", d.Report.MetricsFile)
}
