// Package observe is the fire-and-forget observability boundary.
//
// Every cross-cutting failure in the SDK (cache faults, dropped log batches,
// malformed stored records, drift alerts) is swallowed at its own boundary
// and reported here instead of surfacing to the instrumented caller.
package observe

import (
	"go.uber.org/zap"
)

// Sink receives SDK events. Report must never block the caller for
// correctness and must never panic; implementations that do I/O should
// buffer or drop.
type Sink interface {
	Report(event string, fields map[string]any)
}

// NopSink discards every event.
type NopSink struct{}

// Report implements Sink.
func (NopSink) Report(string, map[string]any) {}

// ZapSink logs events through a zap logger. Events carrying an "error"
// field log at warn level, everything else at info.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps an existing logger. A nil logger gets a production
// default, falling back to a no-op logger if that fails.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	}
	return &ZapSink{logger: logger}
}

// Report implements Sink.
func (s *ZapSink) Report(event string, fields map[string]any) {
	zs := make([]zap.Field, 0, len(fields))
	failed := false
	for k, v := range fields {
		if k == "error" {
			failed = true
		}
		zs = append(zs, zap.Any(k, v))
	}
	if failed {
		s.logger.Warn(event, zs...)
		return
	}
	s.logger.Info(event, zs...)
}
