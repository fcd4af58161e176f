package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/raaihank/agi-sentinel/internal/config"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// RedisSink appends incidents to a Redis stream and keeps per-status
// scan counters in a hash
type RedisSink struct {
	client  *redis.Client
	config  config.RedisAuditConfig
	logger  *zap.Logger
	stream  string
	scans   string
	threats string
}

// NewRedisSink connects to Redis and verifies the connection
func NewRedisSink(cfg config.RedisAuditConfig, logger *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}

	sink := newRedisSink(redis.NewClient(opts), cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), sink.timeout())
	defer cancel()

	if err := sink.client.Ping(ctx).Err(); err != nil {
		_ = sink.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sink.logger.Info("Redis audit sink initialized",
		zap.String("redis_url", maskURL(cfg.URL)),
		zap.String("stream", sink.stream),
		zap.Int64("stream_max_len", cfg.StreamMaxLen))

	return sink, nil
}

func newRedisSink(client *redis.Client, cfg config.RedisAuditConfig, logger *zap.Logger) *RedisSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sentinel"
	}
	return &RedisSink{
		client:  client,
		config:  cfg,
		logger:  logger.With(zap.String("component", "audit.redis")),
		stream:  prefix + ":incidents",
		scans:   prefix + ":scans",
		threats: prefix + ":threats",
	}
}

func (s *RedisSink) timeout() time.Duration {
	if s.config.Timeout > 0 {
		return s.config.Timeout
	}
	return 2 * time.Second
}

// incidentArgs builds the XADD arguments for one incident
func (s *RedisSink) incidentArgs(incident sentinel.Incident) (*redis.XAddArgs, error) {
	record := NewRecord(incident)
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal incident: %w", err)
	}

	return &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.config.StreamMaxLen,
		Approx: s.config.StreamMaxLen > 0,
		Values: map[string]interface{}{
			"incident_id": record.IncidentID,
			"threat_type": record.ThreatType,
			"severity":    record.Severity,
			"payload":     string(data),
		},
	}, nil
}

// LogIncident appends the incident to the stream. Failures are logged.
func (s *RedisSink) LogIncident(incident sentinel.Incident) {
	args, err := s.incidentArgs(incident)
	if err != nil {
		s.logger.Error("Failed to encode incident", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.XAdd(ctx, args)
	pipe.HIncrBy(ctx, s.threats, incident.ThreatType, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to publish incident",
			zap.String("incident_id", incident.IncidentID),
			zap.Error(err))
		return
	}

	s.logger.Debug("Incident published",
		zap.String("incident_id", incident.IncidentID),
		zap.String("stream", s.stream))
}

// LogScan increments the counter for the scan's status. Failures are logged.
func (s *RedisSink) LogScan(scanID string, status sentinel.Status, threats int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	if err := s.client.HIncrBy(ctx, s.scans, string(status), 1).Err(); err != nil {
		s.logger.Error("Failed to record scan",
			zap.String("scan_id", scanID),
			zap.Error(err))
	}
}

// Counts returns the per-status scan counters
func (s *RedisSink) Counts(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.scans).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read scan counters: %w", err)
	}
	return parseCounts(raw)
}

func parseCounts(raw map[string]string) (map[string]int64, error) {
	counts := make(map[string]int64, len(raw))
	for status, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter %s=%q: %w", status, v, err)
		}
		counts[status] = n
	}
	return counts, nil
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
