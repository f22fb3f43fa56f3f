// Package logger defines the minimal structured logging surface the enforcer
// writes to, with adapters for github.com/oarkflow/log and a no-op fallback.
package logger

// Logger accepts alternating key/value pairs after the message. The interface
// is kept small so tests can swap in NullLogger.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
