package audit

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/agi-sentinel/internal/config"
)

// Open builds the configured sinks. The log sink is always present;
// Redis and Postgres are added when enabled. On error every sink opened
// so far is closed.
func Open(cfg config.AuditConfig, logger *zap.Logger) (*Fanout, error) {
	fanout := NewFanout(NewLogSink(logger))

	if cfg.Redis.Enabled {
		sink, err := NewRedisSink(cfg.Redis, logger)
		if err != nil {
			_ = fanout.Close()
			return nil, fmt.Errorf("redis audit sink: %w", err)
		}
		fanout.Add(sink)
	}

	if cfg.Postgres.Enabled {
		sink, err := NewPostgresSink(cfg.Postgres, logger)
		if err != nil {
			_ = fanout.Close()
			return nil, fmt.Errorf("postgres audit sink: %w", err)
		}
		fanout.Add(sink)
	}

	return fanout, nil
}
