// Package observability provides logging, metrics, and tracing for the
// academic-helper service. Components receive a Logger by injection and never
// reach for a package-level logger.
package observability

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

// ParseLogLevel converts a config string such as "debug" into a LogLevel.
// Unknown values fall back to INFO.
func ParseLogLevel(s string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[level]; ok {
		return level
	}
	return LogLevelInfo
}

// Logger defines the interface for logging
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	// WithPrefix returns a logger that tags every line with prefix
	WithPrefix(prefix string) Logger
	// With returns a logger that adds fields to every line
	With(fields map[string]interface{}) Logger
}

// StandardLogger is a Logger writing key=value lines through the standard log package
type StandardLogger struct {
	prefix string
	level  LogLevel
	fields map[string]interface{}
	out    *log.Logger
}

// NewStandardLogger creates a new StandardLogger with the given prefix at INFO level
func NewStandardLogger(prefix string) *StandardLogger {
	return &StandardLogger{
		prefix: prefix,
		level:  LogLevelInfo,
		out:    log.New(os.Stderr, "", 0),
	}
}

// WithLevel returns a copy of the logger with the specified minimum level
func (l *StandardLogger) WithLevel(level LogLevel) *StandardLogger {
	cp := l.clone()
	cp.level = level
	return cp
}

// WithOutput returns a copy of the logger writing to w
func (l *StandardLogger) WithOutput(w io.Writer) *StandardLogger {
	cp := l.clone()
	cp.out = log.New(w, "", 0)
	return cp
}

func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(LogLevelDebug, msg, fields)
}

func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	l.log(LogLevelInfo, msg, fields)
}

func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(LogLevelWarn, msg, fields)
}

func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LogLevelError, msg, fields)
}

// Fatal logs at FATAL and exits the process with status 1
func (l *StandardLogger) Fatal(msg string, fields map[string]interface{}) {
	l.log(LogLevelFatal, msg, fields)
	os.Exit(1)
}

// WithPrefix returns a copy tagged with prefix; level and fields carry over
func (l *StandardLogger) WithPrefix(prefix string) Logger {
	cp := l.clone()
	cp.prefix = prefix
	return cp
}

// With returns a new logger carrying the given fields on every line
func (l *StandardLogger) With(fields map[string]interface{}) Logger {
	cp := l.clone()
	cp.fields = make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		cp.fields[k] = v
	}
	for k, v := range fields {
		cp.fields[k] = v
	}
	return cp
}

func (l *StandardLogger) clone() *StandardLogger {
	return &StandardLogger{
		prefix: l.prefix,
		level:  l.level,
		fields: l.fields,
		out:    l.out,
	}
}

func (l *StandardLogger) enabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.level]
}

// formatFields renders fields as sorted key=value pairs so lines are stable
func formatFields(base, fields map[string]interface{}) string {
	if len(base) == 0 && len(fields) == 0 {
		return ""
	}
	merged := make(map[string]interface{}, len(base)+len(fields))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, merged[k])
	}
	return b.String()
}

func (l *StandardLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if !l.enabled(level) {
		return
	}
	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	l.out.Printf("%s [%s] [%s] %s%s", timestamp, level, l.prefix, msg, formatFields(l.fields, fields))
}

// NoopLogger discards everything. Used by tests and as the nil default.
type NoopLogger struct{}

func NewNoopLogger() Logger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Fatal(msg string, fields map[string]interface{}) {}

func (l *NoopLogger) WithPrefix(prefix string) Logger { return l }

func (l *NoopLogger) With(fields map[string]interface{}) Logger { return l }
