package sentinel

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/agi-sentinel/internal/rules"
)

// Options configures a Sentinel. The zero value is usable.
type Options struct {
	// Policy decides how overlapping matches are resolved
	Policy OverlapPolicy
	// Timeout bounds a single scan; zero disables it
	Timeout time.Duration
	// Stats is shared across engines when set, e.g. across rule reloads
	Stats *Stats
	// Sink receives incidents and scan summaries
	Sink   AuditSink
	Logger *zap.Logger
	Clock  func() time.Time
}

// Sentinel scans text against an immutable rule set. It is safe for
// concurrent use; the only shared mutable state is its Stats.
type Sentinel struct {
	rules    *rules.RuleSet
	redactor *Redactor
	stats    *Stats
	sink     AuditSink
	policy   OverlapPolicy
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Sentinel over an already compiled rule set
func New(set *rules.RuleSet, opts Options) *Sentinel {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = NopSink()
	}
	if opts.Stats == nil {
		opts.Stats = NewStats(opts.Clock)
	}
	if opts.Policy == "" {
		opts.Policy = DefaultPolicy
	}

	return &Sentinel{
		rules:    set,
		redactor: NewRedactor(opts.Policy, opts.Stats, opts.Sink, opts.Logger, opts.Clock),
		stats:    opts.Stats,
		sink:     opts.Sink,
		policy:   opts.Policy,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		now:      opts.Clock,
	}
}

// Build merges overrides onto the default catalogue, compiles the result and
// returns a ready Sentinel. Rules that fail to compile are logged and left out.
func Build(overrides map[string]rules.Definition, opts Options) *Sentinel {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	set, warnings := rules.Compile(rules.Merge(rules.DefaultDefinitions(), overrides))
	for _, w := range warnings {
		opts.Logger.Warn("Rule excluded", zap.Error(w))
	}

	s := New(set, opts)
	opts.Logger.Info("Sentinel initialized",
		zap.Int("rules_loaded", set.Len()),
		zap.Int("rules_rejected", len(warnings)),
		zap.String("overlap_policy", string(s.policy)),
	)
	return s
}

// Scan inspects text and returns the redacted result. Invalid input yields
// a result with StatusError rather than an error.
func (s *Sentinel) Scan(text string) ScanResult {
	result, _ := s.ScanContext(context.Background(), text)
	return result
}

// ScanContext is Scan with cancellation. Cancellation is checked between
// rules; a cancelled scan returns a StatusError result and the context error.
func (s *Sentinel) ScanContext(ctx context.Context, text string) (ScanResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	scanID := newID(scanPrefix, s.now())
	s.stats.RecordScan(utf8.RuneCountInString(text))

	if text == "" {
		result := s.errorResult(scanID, "Invalid input text")
		s.sink.LogScan(scanID, result.Status, 0)
		return result, nil
	}

	matches, err := collect(ctx, text, s.rules)
	if err != nil {
		s.logger.Warn("Scan cancelled", zap.String("scan_id", scanID), zap.Error(err))
		result := s.errorResult(scanID, fmt.Sprintf("scan cancelled: %v", err))
		s.sink.LogScan(scanID, result.Status, 0)
		return result, err
	}

	result := ScanResult{
		Status:        StatusSecure,
		OriginalText:  text,
		ProcessedText: text,
		Incidents:     []Incident{},
	}
	if len(matches) > 0 {
		processed, incidents := s.redactor.Redact(text, matches)
		if len(incidents) > 0 {
			result.Status = StatusShielded
			result.ProcessedText = processed
			result.Incidents = incidents
		}
	}

	result.Metadata = Metadata{
		ScanID:       scanID,
		Timestamp:    s.now(),
		ThreatsCount: len(result.Incidents),
		RulesApplied: distinctRules(result.Incidents),
	}

	s.sink.LogScan(scanID, result.Status, len(result.Incidents))
	return result, nil
}

// Protect scans text and returns the compact legacy result
func (s *Sentinel) Protect(text string) ProtectResult {
	result := s.Scan(text)

	out := ProtectResult{
		Status:  result.Status,
		Output:  result.ProcessedText,
		Threats: make([]string, 0, len(result.Incidents)),
	}
	if len(result.Incidents) > 0 {
		out.IncidentID = result.Incidents[0].IncidentID
	}
	for _, incident := range result.Incidents {
		out.Threats = append(out.Threats, incident.ThreatType)
	}
	return out
}

// Statistics returns a snapshot of the aggregate counters
func (s *Sentinel) Statistics() Snapshot {
	return s.stats.Snapshot()
}

// Stats returns the registry this engine writes to
func (s *Sentinel) Stats() *Stats {
	return s.stats
}

// Rules returns the loaded rule set
func (s *Sentinel) Rules() *rules.RuleSet {
	return s.rules
}

// RuleIDs returns the ids of the loaded rules
func (s *Sentinel) RuleIDs() []string {
	return s.rules.IDs()
}

// Policy returns the overlap policy in effect
func (s *Sentinel) Policy() OverlapPolicy {
	return s.policy
}

func (s *Sentinel) errorResult(scanID, message string) ScanResult {
	return ScanResult{
		Status:    StatusError,
		Incidents: []Incident{},
		Metadata: Metadata{
			ScanID:    scanID,
			Timestamp: s.now(),
			Error:     message,
		},
	}
}

func distinctRules(incidents []Incident) []string {
	if len(incidents) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, incident := range incidents {
		if !seen[incident.ThreatType] {
			seen[incident.ThreatType] = true
			ids = append(ids, incident.ThreatType)
		}
	}
	sort.Strings(ids)
	return ids
}
