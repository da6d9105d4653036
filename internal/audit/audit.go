package audit

import (
	"github.com/marketloom/pointer-engine/internal/logger"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is the actor-agnostic audit record emitted by every mutating registry
// operation: which component did what to which id, and how severe it was.
type Event struct {
	Component string
	Action    string
	Metadata  map[string]interface{}
	Severity  Severity
}

// Sink is provided externally; the engine only promises to call Record on
// every mutation. Record must not block the caller.
type Sink interface {
	Record(event Event)
}

type logSink struct {
	log *logger.Logger
}

// NewLogSink is the default sink: audit events become structured log lines.
func NewLogSink(baseLog *logger.Logger) Sink {
	return &logSink{log: baseLog.With("component", "Audit")}
}

func (s *logSink) Record(event Event) {
	kvs := []interface{}{
		"audit_component", event.Component,
		"audit_action", event.Action,
	}
	for k, v := range event.Metadata {
		kvs = append(kvs, k, v)
	}
	switch event.Severity {
	case SeverityError:
		s.log.Error("Audit event", kvs...)
	case SeverityWarning:
		s.log.Warn("Audit event", kvs...)
	default:
		s.log.Info("Audit event", kvs...)
	}
}

// NopSink discards events. Test helper.
type NopSink struct{}

func (NopSink) Record(Event) {}
