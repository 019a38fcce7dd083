// Package core defines the narrow set of interfaces shared across every
// layer of the execution pipeline so that no package needs to import an
// implementation (zap, otel, ...) directly.
package core

// ILogger is the structured logging interface implemented by pkg/logging.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
