package metrics

import "testing"

func TestNoOp_DoesNotPanic(t *testing.T) {
	sink := New()
	sink.Emit(EventOTASuccess, map[string]interface{}{"old_version": "1.0.0", "new_version": "2.0.0"})
}

type recordingLogger struct {
	lastMsg string
	lastKVs []interface{}
}

func (r *recordingLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (r *recordingLogger) Info(msg string, keysAndValues ...interface{}) {
	r.lastMsg = msg
	r.lastKVs = keysAndValues
}
func (r *recordingLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (r *recordingLogger) Error(msg string, keysAndValues ...interface{}) {}

func TestLoggingSink_ForwardsEventAsInfoLog(t *testing.T) {
	logger := &recordingLogger{}
	sink := NewLoggingSink(logger)

	sink.Emit(EventOTAError, map[string]interface{}{"stage": "verify"})

	if logger.lastMsg != EventOTAError {
		t.Errorf("lastMsg = %q, want %q", logger.lastMsg, EventOTAError)
	}
	if len(logger.lastKVs) != 2 {
		t.Fatalf("got %d key/value entries, want 2", len(logger.lastKVs))
	}
}
