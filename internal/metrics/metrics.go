// Package metrics defines the event-sink interface the Updater and
// Supervisor publish observability events through, plus a no-op sink and
// a sink that forwards every event to a structured logger.
package metrics

import "github.com/browseros-org/sidecar-supervisor/internal/logging"

// Event names emitted by the core. ota.extension.unexpected_state is
// listed for completeness — it is emitted by the external extensions
// collaborator, not the core, but the sink interface must carry it.
const (
	EventOTABusy                  = "server.ota.busy"
	EventOTACleanup               = "server.ota.cleanup"
	EventOTAError                 = "server.ota.error"
	EventOTASuccess               = "server.ota.success"
	EventExtensionUnexpectedState = "ota.extension.unexpected_state"
)

// Sink publishes a named event with an opaque set of key/value fields.
type Sink interface {
	Emit(event string, fields map[string]interface{})
}

// NoOp discards every event.
type NoOp struct{}

// New returns a Sink that discards every event.
func New() Sink { return NoOp{} }

func (NoOp) Emit(event string, fields map[string]interface{}) {}

// LoggingSink forwards every event to a Logger at Info level, using the
// event name as the log message and the fields as key/value pairs.
type LoggingSink struct {
	logger logging.Logger
}

// NewLoggingSink returns a Sink backed by logger.
func NewLoggingSink(logger logging.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Emit(event string, fields map[string]interface{}) {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	s.logger.Info(event, kv...)
}
