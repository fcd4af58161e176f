package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/raaihank/agi-sentinel/internal/audit"
	"github.com/raaihank/agi-sentinel/internal/config"
	"github.com/raaihank/agi-sentinel/internal/logger"
	"github.com/raaihank/agi-sentinel/internal/report"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// globalFlags holds the flags shared by every command
type globalFlags struct {
	configPath  string
	workers     int
	policy      string
	reportPath  string
	metricsFile string
}

// app is the wired application for one command invocation
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	flags      globalFlags
	workersSet bool
	loader     *config.Loader
	log        *logger.Logger
	sinks      *audit.Fanout

	mu     sync.RWMutex
	cfg    *config.Config
	engine *sentinel.Sentinel
}

// setup loads configuration and builds the logger, audit sinks and engine
func (a *app) setup(workersSet bool) error {
	a.workersSet = workersSet
	a.loader = config.NewLoader(a.flags.configPath, nil)
	cfg, err := a.loader.Load()
	if err != nil {
		return codeError(2, "failed to load configuration: %s", err)
	}
	if err := applyOverrides(cfg, a.flags, workersSet); err != nil {
		return codeError(2, "%s", err)
	}
	a.cfg = cfg

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: a.stderr,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:    true,
			Path:       cfg.Logging.File.Path,
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxAge:     cfg.Logging.File.MaxAge,
			MaxBackups: cfg.Logging.File.MaxBackups,
			Compress:   cfg.Logging.File.Compress,
		}
	}

	a.log, err = logger.New(loggerConfig)
	if err != nil {
		return codeError(2, "failed to initialize logger: %s", err)
	}

	for _, w := range cfg.RuleWarnings {
		a.log.Warn("Rule definition skipped", zap.Error(w))
	}

	a.sinks, err = audit.Open(cfg.Audit, a.log.Logger)
	if err != nil {
		return codeError(3, "failed to open audit sinks: %s", err)
	}

	a.engine = a.buildEngine(cfg, nil)

	a.log.Debug("Application ready",
		zap.String("version", version),
		zap.String("config", a.loader.ConfigFileUsed()),
		zap.Int("audit_sinks", a.sinks.Len()))
	return nil
}

// buildEngine compiles the configured rules. A non-nil stats registry is
// carried over so counters survive a reload.
func (a *app) buildEngine(cfg *config.Config, stats *sentinel.Stats) *sentinel.Sentinel {
	policy, _ := sentinel.ParsePolicy(cfg.Engine.OverlapPolicy)
	return sentinel.Build(cfg.Rules, sentinel.Options{
		Policy:  policy,
		Timeout: cfg.Engine.ScanTimeout,
		Stats:   stats,
		Sink:    a.sinks,
		Logger:  a.log.WithComponent("sentinel").Logger,
	})
}

// reload applies the command line overrides to a freshly loaded
// configuration and replaces the engine. Counters carry over.
func (a *app) reload(next *config.Config) (*sentinel.Sentinel, error) {
	if err := applyOverrides(next, a.flags, a.workersSet); err != nil {
		return nil, err
	}
	for _, w := range next.RuleWarnings {
		a.log.Warn("Rule definition skipped", zap.Error(w))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	engine := a.buildEngine(next, a.engine.Stats())
	a.cfg = next
	a.engine = engine
	return engine, nil
}

// current returns the active configuration and engine
func (a *app) current() (*config.Config, *sentinel.Sentinel) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg, a.engine
}

// close writes the requested report and metrics and releases the sinks
func (a *app) close() error {
	cfg, engine := a.current()
	if engine == nil {
		return nil
	}

	var err error
	if path := cfg.Report.Output; path != "" {
		if e := report.Export(path, report.Build(engine, cfg, version)); e != nil {
			err = multierr.Append(err, e)
		} else {
			a.log.Info("Report exported", zap.String("path", path))
		}
	}
	if path := cfg.Report.MetricsFile; path != "" {
		if e := report.WriteMetrics(path, engine.Statistics(), engine.Rules()); e != nil {
			err = multierr.Append(err, e)
		}
	}

	err = multierr.Append(err, a.sinks.Close())
	_ = a.log.Sync()
	return err
}

// applyOverrides folds command line flags into the loaded configuration
func applyOverrides(cfg *config.Config, flags globalFlags, workersSet bool) error {
	if flags.policy != "" {
		policy, err := sentinel.ParsePolicy(flags.policy)
		if err != nil {
			return err
		}
		cfg.Engine.OverlapPolicy = string(policy)
	}
	if workersSet {
		n := config.ClampWorkers(flags.workers)
		cfg.Engine.MaxWorkers = n
		cfg.Bulk.Workers = n
	}
	if flags.reportPath != "" {
		cfg.Report.Output = flags.reportPath
	}
	if flags.metricsFile != "" {
		cfg.Report.MetricsFile = flags.metricsFile
	}
	return nil
}

// swappableScanner lets a running watcher pick up a rebuilt engine
type swappableScanner struct {
	current atomic.Pointer[sentinel.Sentinel]
}

func newSwappableScanner(s *sentinel.Sentinel) *swappableScanner {
	sw := &swappableScanner{}
	sw.current.Store(s)
	return sw
}

func (s *swappableScanner) ScanContext(ctx context.Context, text string) (sentinel.ScanResult, error) {
	return s.current.Load().ScanContext(ctx, text)
}

func (s *swappableScanner) Swap(next *sentinel.Sentinel) {
	s.current.Store(next)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
