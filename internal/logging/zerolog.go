package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts the package's key/value Logger contract onto
// zerolog's event-builder API. This is the default production sink wired
// by cmd/sidecar-supervisor.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerolog returns a Logger that writes structured, leveled JSON to w via
// zerolog. Pass os.Stderr for console output during development.
func NewZerolog(w *os.File) *ZerologLogger {
	return &ZerologLogger{log: zerolog.New(w).With().Timestamp().Logger()}
}

func (z *ZerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	withFields(z.log.Debug(), keysAndValues).Msg(msg)
}

func (z *ZerologLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(z.log.Info(), keysAndValues).Msg(msg)
}

func (z *ZerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	withFields(z.log.Warn(), keysAndValues).Msg(msg)
}

func (z *ZerologLogger) Error(msg string, keysAndValues ...interface{}) {
	withFields(z.log.Error(), keysAndValues).Msg(msg)
}

// withFields folds a flat keysAndValues slice (key1, val1, key2, val2, ...)
// into zerolog event fields. A pair whose key is not a string is skipped; a
// dangling trailing element is rendered under a fallback "extra" field.
func withFields(evt *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		evt = evt.Interface(key, keysAndValues[i+1])
	}
	if len(keysAndValues)%2 == 1 {
		evt = evt.Interface("extra", keysAndValues[len(keysAndValues)-1])
	}
	return evt
}
