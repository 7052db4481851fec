package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	}
	return InfoLevel, fmt.Errorf("log: unknown level %q", s)
}

// Field is a single structured key/value attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func Str(key, value string) Field              { return Field{Key: key, Value: value} }
func Int(key string, value int) Field          { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field      { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field    { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field  { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field        { return Field{Key: key, Value: value} }
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }
func Any(key string, value interface{}) Field  { return Field{Key: key, Value: value} }

// Err attaches an error under the conventional "error" key. Nil-safe.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component tags entries with the emitting component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }

// Fields is a map of field names to values used by formatters.
type Fields map[string]interface{}

// Entry represents a single log entry handed to formatters and outputs.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
}

// Formatter renders an Entry to bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives formatted entries.
type Output interface {
	Write(entry *Entry, formatted []byte) error
	Close() error
}

// Logger is the interface Verbatim components log against.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// With returns a child logger carrying additional fields.
	With(fields ...Field) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// LoggerOption configures a logger at construction time.
type LoggerOption func(*BaseLogger)

// BaseLogger implements Logger on top of a slog bridge handler.
type BaseLogger struct {
	level     Level
	base      []Field
	formatter Formatter
	outputs   []Output
	sl        *slog.Logger
}

// NewLogger creates a logger with the given options. Defaults: InfoLevel,
// text formatting, console output.
func NewLogger(options ...LoggerOption) Logger {
	l := &BaseLogger{
		level:     InfoLevel,
		formatter: &TextFormatter{},
	}
	for _, opt := range options {
		opt(l)
	}
	if len(l.outputs) == 0 {
		l.outputs = []Output{NewConsoleOutput()}
	}
	l.sl = slog.New(newBridgeHandler(l))
	return l
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.level = level }
}

// WithFormatter sets the entry formatter.
func WithFormatter(f Formatter) LoggerOption {
	return func(l *BaseLogger) { l.formatter = f }
}

// WithOutput adds an output.
func WithOutput(o Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, o) }
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	l.sl.LogAttrs(context.Background(), toSlogLevel(level), msg, attrsFromFields(fields)...)
	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }
func (l *BaseLogger) Fatal(msg string, fields ...Field) { l.log(FatalLevel, msg, fields) }

// With returns a child logger carrying additional base fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	child := &BaseLogger{
		level:     l.level,
		base:      append(append([]Field{}, l.base...), fields...),
		formatter: l.formatter,
		outputs:   l.outputs,
	}
	child.sl = slog.New(newBridgeHandler(child))
	return child
}

func (l *BaseLogger) SetLevel(level Level) { l.level = level }
func (l *BaseLogger) GetLevel() Level      { return l.level }
