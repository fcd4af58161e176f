package audit

import (
	"io"

	"go.uber.org/multierr"

	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// Fanout forwards every event to each of its sinks in order
type Fanout struct {
	sinks []sentinel.AuditSink
}

// NewFanout creates a fanout over the non-nil sinks
func NewFanout(sinks ...sentinel.AuditSink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Add appends a sink
func (f *Fanout) Add(s sentinel.AuditSink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// Len returns the number of sinks
func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) LogIncident(incident sentinel.Incident) {
	for _, s := range f.sinks {
		s.LogIncident(incident)
	}
}

func (f *Fanout) LogScan(scanID string, status sentinel.Status, threats int) {
	for _, s := range f.sinks {
		s.LogScan(scanID, status, threats)
	}
}

// Close closes every sink that holds resources and combines their errors
func (f *Fanout) Close() error {
	var err error
	for _, s := range f.sinks {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
