package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()
	assert.Equal(t, "longest", cfg.Engine.OverlapPolicy)
	assert.Equal(t, "logs/sentinel_audit.log", cfg.Logging.File.Path)
	assert.Equal(t, 10, cfg.Logging.File.MaxSize)
	assert.Equal(t, 10, cfg.Logging.File.MaxBackups)
	assert.Equal(t, "_shielded", cfg.Bulk.OutputSuffix)
	assert.NoError(t, validateConfig(cfg))
}

func TestLoad(t *testing.T) {
	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := writeConfig(t, `
engine:
  overlap_policy: Merge
  scan_timeout: 250ms
  max_workers: 64
logging:
  level: debug
  format: json
  file:
    enabled: false
bulk:
  batch_size: 10
security_rules:
  pii_email:
    enabled: false
  custom_token:
    pattern: "tok_[a-z0-9]{8}"
    severity: HIGH
    action: REDACT
    description: internal token
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "merge", cfg.Engine.OverlapPolicy)
		assert.Equal(t, 250*time.Millisecond, cfg.Engine.ScanTimeout)
		assert.Equal(t, MaxWorkerLimit, cfg.Engine.MaxWorkers)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.False(t, cfg.Logging.File.Enabled)
		assert.Equal(t, 10, cfg.Bulk.BatchSize)
		// untouched keys keep their defaults
		assert.Equal(t, "_shielded", cfg.Bulk.OutputSuffix)

		require.Contains(t, cfg.Rules, "PII_EMAIL")
		assert.False(t, cfg.Rules["PII_EMAIL"].IsEnabled())
		require.Contains(t, cfg.Rules, "CUSTOM_TOKEN")
		assert.Equal(t, "tok_[a-z0-9]{8}", cfg.Rules["CUSTOM_TOKEN"].Pattern)
		assert.Equal(t, "HIGH", cfg.Rules["CUSTOM_TOKEN"].Severity)
	})

	t.Run("EnvironmentOverride", func(t *testing.T) {
		t.Setenv("SENTINEL_ENGINE_OVERLAP_POLICY", "exact")
		t.Setenv("SENTINEL_BULK_WORKERS", "3")

		cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
		require.NoError(t, err)
		assert.Equal(t, "exact", cfg.Engine.OverlapPolicy)
		assert.Equal(t, 3, cfg.Bulk.Workers)
	})

	t.Run("InvalidPolicy", func(t *testing.T) {
		_, err := Load(writeConfig(t, "engine:\n  overlap_policy: shortest\n"))
		assert.Error(t, err)
	})

	t.Run("InvalidLogLevel", func(t *testing.T) {
		_, err := Load(writeConfig(t, "logging:\n  level: verbose\n"))
		assert.Error(t, err)
	})

	t.Run("RedisEnabledWithoutURL", func(t *testing.T) {
		_, err := Load(writeConfig(t, "audit:\n  redis:\n    enabled: true\n    url: \"\"\n"))
		assert.Error(t, err)
	})

	t.Run("MalformedRuleEntryIsSkipped", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		path := writeConfig(t, `
security_rules:
  broken: "not a mapping"
  custom_token:
    pattern: "tok_[a-z0-9]{8}"
    severity: HIGH
    action: REDACT
`)
		cfg, err := NewLoader(path, zap.New(core)).Load()
		require.NoError(t, err)

		require.Contains(t, cfg.Rules, "CUSTOM_TOKEN")
		assert.Equal(t, "tok_[a-z0-9]{8}", cfg.Rules["CUSTOM_TOKEN"].Pattern)
		assert.NotContains(t, cfg.Rules, "BROKEN")

		require.Len(t, cfg.RuleWarnings, 1)
		assert.Contains(t, cfg.RuleWarnings[0].Error(), "BROKEN")
		assert.Equal(t, 1, logs.FilterMessage("Rule definition skipped").Len())
	})

	t.Run("RulesSectionNotAMapping", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "security_rules: nope\n"))
		require.NoError(t, err)
		assert.Empty(t, cfg.Rules)
		assert.Len(t, cfg.RuleWarnings, 1)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, 1, ClampWorkers(0))
	assert.Equal(t, 1, ClampWorkers(-5))
	assert.Equal(t, 8, ClampWorkers(8))
	assert.Equal(t, 16, ClampWorkers(100))
}

func TestWatch(t *testing.T) {
	path := writeConfig(t, "engine:\n  overlap_policy: longest\n")
	loader := NewLoader(path, nil)
	_, err := loader.Load()
	require.NoError(t, err)

	var policy atomic.Value
	loader.Watch(func(cfg *Config) {
		policy.Store(cfg.Engine.OverlapPolicy)
	})

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  overlap_policy: merge\n"), 0o644))

	assert.Eventually(t, func() bool {
		v, _ := policy.Load().(string)
		return v == "merge"
	}, 5*time.Second, 50*time.Millisecond)
}
