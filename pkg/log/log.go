// Package log provides structured logging for pgiris.
//
// Logging is split into categories, each independently leveled:
//   - Protocol: per-connection lifecycle, frame codec, session errors
//   - Backend: backend executor, connection pool, COPY streaming, and
//     listener start/stop, accept and cancel-dispatch events
//   - Audit: authentication attempts and rejections
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level string.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	case "OFF", "NONE":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Category identifies the logging category.
type Category string

const (
	CategoryProtocol Category = "protocol"
	CategoryBackend  Category = "backend"
	CategoryAudit    Category = "audit"
)

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Entry represents a single log entry.
type Entry struct {
	Time     time.Time              `json:"time"`
	Level    Level                  `json:"level"`
	Category Category               `json:"category"`
	Message  string                 `json:"message"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	ErrorStr string                 `json:"error,omitempty"`
}

// Logger is the main logging interface. Every category shares the
// logger's format and output but has its own minimum level.
type Logger struct {
	mu sync.RWMutex

	levels map[Category]Level
	output io.Writer
	format Format
}

// Config holds logger configuration.
type Config struct {
	DefaultLevel   Level
	CategoryLevels map[Category]Level
	Output         io.Writer
	Format         Format
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLevel: LevelInfo,
		Output:       os.Stderr,
		Format:       FormatText,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	l := &Logger{
		levels: make(map[Category]Level),
		output: cfg.Output,
		format: cfg.Format,
	}

	for _, cat := range []Category{CategoryProtocol, CategoryBackend, CategoryAudit} {
		l.levels[cat] = cfg.DefaultLevel
	}
	for cat, level := range cfg.CategoryLevels {
		l.levels[cat] = level
	}

	return l
}

// Close is a no-op placeholder for callers that defer it unconditionally
// regardless of whether the logger buffers anything that needs flushing.
func (l *Logger) Close() error { return nil }

func (l *Logger) log(level Level, cat Category, msg string, err error, fields ...interface{}) {
	l.mu.RLock()
	catLevel := l.levels[cat]
	output := l.output
	format := l.format
	l.mu.RUnlock()

	if level < catLevel {
		return
	}

	entry := &Entry{
		Time:     time.Now(),
		Level:    level,
		Category: cat,
		Message:  msg,
	}
	if err != nil {
		entry.ErrorStr = err.Error()
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields)/2)
		for i := 0; i < len(fields)-1; i += 2 {
			if key, ok := fields[i].(string); ok {
				entry.Fields[key] = fields[i+1]
			}
		}
	}

	l.writeEntry(output, format, entry)
}

func (l *Logger) writeEntry(w io.Writer, format Format, entry *Entry) {
	var line string
	switch format {
	case FormatJSON:
		data, _ := json.Marshal(entry)
		line = string(data) + "\n"
	default:
		line = formatText(entry)
	}
	w.Write([]byte(line))
}

func formatText(entry *Entry) string {
	var buf strings.Builder
	buf.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" ")
	buf.WriteString(fmt.Sprintf("%-5s", entry.Level.String()))
	buf.WriteString(" [")
	buf.WriteString(string(entry.Category))
	buf.WriteString("] ")
	buf.WriteString(entry.Message)
	if entry.ErrorStr != "" {
		buf.WriteString(" error=\"")
		buf.WriteString(entry.ErrorStr)
		buf.WriteString("\"")
	}
	for k, v := range entry.Fields {
		buf.WriteString(" ")
		buf.WriteString(k)
		buf.WriteString("=")
		buf.WriteString(fmt.Sprintf("%v", v))
	}
	buf.WriteString("\n")
	return buf.String()
}

// Protocol returns a category logger for connection/frame events.
func (l *Logger) Protocol() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryProtocol}
}

// Backend returns a category logger for backend executor events.
func (l *Logger) Backend() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryBackend}
}

// Audit returns a category logger for authentication/audit events.
func (l *Logger) Audit() *CategoryLogger {
	return &CategoryLogger{logger: l, category: CategoryAudit}
}

// CategoryLogger is a logger bound to a specific category.
type CategoryLogger struct {
	logger   *Logger
	category Category
}

func (cl *CategoryLogger) Debug(msg string, fields ...interface{}) {
	cl.logger.log(LevelDebug, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Info(msg string, fields ...interface{}) {
	cl.logger.log(LevelInfo, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Warn(msg string, fields ...interface{}) {
	cl.logger.log(LevelWarn, cl.category, msg, nil, fields...)
}

func (cl *CategoryLogger) Error(msg string, err error, fields ...interface{}) {
	cl.logger.log(LevelError, cl.category, msg, err, fields...)
}

func (cl *CategoryLogger) Fatal(msg string, err error, fields ...interface{}) {
	cl.logger.log(LevelFatal, cl.category, msg, err, fields...)
}

// Default logger instance, used where a caller has no Logger of its own.
var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the default logger instance.
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = New(DefaultConfig())
	})
	return defaultLogger
}
