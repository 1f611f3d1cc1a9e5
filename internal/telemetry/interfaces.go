package telemetry

import (
	"log"
	"strings"

	"netsync/logging"
)

// Logger is the printf-style sink used for operator diagnostics that do not
// warrant a structured event.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts a function to Logger. A nil LoggerFunc discards output.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// Discard drops every line.
var Discard Logger = LoggerFunc(nil)

// WrapLogger adapts a standard library logger. A nil logger discards output.
func WrapLogger(logger *log.Logger) Logger {
	if logger == nil {
		return Discard
	}
	return LoggerFunc(logger.Printf)
}

// Prefixed tags every line with "[prefix] " so several participants can
// share one underlying logger.
func Prefixed(logger Logger, prefix string) Logger {
	if logger == nil {
		return Discard
	}
	if prefix == "" {
		return logger
	}
	tag := "[" + prefix + "] "
	return LoggerFunc(func(format string, args ...any) {
		logger.Printf(tag+format, args...)
	})
}

// Metrics receives counter increments and gauge updates.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics publishes into the router's shared metrics bag.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return routerMetrics{metrics: metrics}
}

type routerMetrics struct {
	metrics *logging.Metrics
}

func (m routerMetrics) Add(key string, delta uint64) {
	if m.metrics != nil {
		m.metrics.TelemetryAdd(key, delta)
	}
}

func (m routerMetrics) Store(key string, value uint64) {
	if m.metrics != nil {
		m.metrics.TelemetryStore(key, value)
	}
}

// ScopedMetrics namespaces every key as "scope_key".
func ScopedMetrics(metrics Metrics, scope string) Metrics {
	scope = strings.Trim(scope, "_")
	if metrics == nil || scope == "" {
		return metrics
	}
	return scopedMetrics{next: metrics, prefix: scope + "_"}
}

type scopedMetrics struct {
	next   Metrics
	prefix string
}

func (m scopedMetrics) Add(key string, delta uint64)   { m.next.Add(m.prefix+key, delta) }
func (m scopedMetrics) Store(key string, value uint64) { m.next.Store(m.prefix+key, value) }
