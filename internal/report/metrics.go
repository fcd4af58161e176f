package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raaihank/agi-sentinel/internal/rules"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// Registry builds a Prometheus registry holding the snapshot's counters.
// The rule set maps each rule to its severity label.
func Registry(snapshot sentinel.Snapshot, set *rules.RuleSet) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	scans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_scans_total",
		Help: "Total number of texts scanned.",
	})
	characters := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_characters_processed_total",
		Help: "Total number of characters scanned.",
	})
	threats := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_threats_total",
		Help: "Detections by severity and rule.",
	}, []string{"severity", "rule"})
	uptime := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_uptime_seconds",
		Help: "Seconds since the statistics registry was created.",
	})

	for _, c := range []prometheus.Collector{scans, characters, threats, uptime} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	scans.Add(float64(snapshot.TotalScans))
	characters.Add(float64(snapshot.CharactersProcessed))
	uptime.Set(snapshot.UptimeSeconds)

	for ruleID, count := range snapshot.ByRule {
		severity := "UNKNOWN"
		if set != nil {
			if rule, ok := set.Get(ruleID); ok {
				severity = string(rule.Severity)
			}
		}
		threats.WithLabelValues(severity, ruleID).Add(float64(count))
	}

	return reg, nil
}

// WriteMetrics writes the snapshot as a Prometheus textfile
func WriteMetrics(path string, snapshot sentinel.Snapshot, set *rules.RuleSet) error {
	reg, err := Registry(snapshot, set)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
