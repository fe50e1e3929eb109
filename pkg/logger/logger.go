package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ANSI color codes for console output
const (
	ColorReset        = "\033[0m"
	ColorCyan         = "\033[36m"
	ColorGreen        = "\033[32m"
	ColorBrightRed    = "\033[91m"
	ColorBrightYellow = "\033[93m"
	ColorBrightGray   = "\033[90m"
)

// Column widths for console alignment
const (
	ServiceNameWidth = 20
	LogLevelWidth    = 7
)

// Severity levels, lowest first.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Options selects the rendering mode and output targets for a Logger.
type Options struct {
	// JSONFormat renders one JSON object per line instead of the
	// human-readable console format.
	JSONFormat bool
	// Level is the minimum severity ("DEBUG", "INFO", "WARN", "ERROR").
	Level string
	// File enables rotating file output alongside stdout when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// LogEntry represents a single log entry.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Service string            `json:"service"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Logger provides leveled structured logging with a console and a
// single-line JSON rendering mode.
type Logger struct {
	serviceName string
	version     string

	mu           sync.Mutex
	out          io.Writer
	jsonFormat   bool
	minLevel     int
	colorEnabled bool
}

// New creates a logger with default options (console mode, INFO level).
func New(serviceName, version string) *Logger {
	return NewWithOptions(serviceName, version, Options{Level: "INFO"})
}

// NewWithOptions creates a logger configured per opts.
func NewWithOptions(serviceName, version string, opts Options) *Logger {
	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		})
	}
	return &Logger{
		serviceName:  serviceName,
		version:      version,
		out:          out,
		jsonFormat:   opts.JSONFormat,
		minLevel:     parseLevel(opts.Level),
		colorEnabled: !opts.JSONFormat && isTerminal(),
	}
}

// SetOutput redirects log output. Used by tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
	l.colorEnabled = false
}

func parseLevel(level string) int {
	switch level {
	case "DEBUG", "debug":
		return LevelDebug
	case "WARN", "warn":
		return LevelWarn
	case "ERROR", "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func levelNumber(level string) int {
	switch level {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	}
	return LevelInfo
}

// isTerminal checks if we're outputting to a terminal (for color support)
func isTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

func (l *Logger) getColorForLevel(level string) string {
	if !l.colorEnabled {
		return ""
	}
	switch level {
	case "DEBUG":
		return ColorBrightGray
	case "INFO":
		return ColorGreen
	case "WARN":
		return ColorBrightYellow
	case "ERROR", "FATAL":
		return ColorBrightRed
	default:
		return ColorReset
	}
}

// formatServiceName truncates and pads service name for consistent column width
func formatServiceName(serviceName string) string {
	if len(serviceName) > ServiceNameWidth {
		return serviceName[:ServiceNameWidth-1] + "…"
	}
	return fmt.Sprintf("%-*s", ServiceNameWidth, serviceName)
}

// formatLogLevel pads log level for consistent column width and adds visual indicators
func formatLogLevel(level string) string {
	levelStr := level
	switch level {
	case "ERROR", "FATAL":
		levelStr = "✗ " + levelStr
	case "WARN":
		levelStr = "⚠ " + levelStr
	case "INFO":
		levelStr = "ℹ " + levelStr
	case "DEBUG":
		levelStr = "◦ " + levelStr
	}
	return fmt.Sprintf("%-*s", LogLevelWidth+2, levelStr)
}

func (l *Logger) log(level, message string, fields map[string]string) {
	if levelNumber(level) < l.minLevel {
		return
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonFormat {
		entry := LogEntry{
			Time:    now.UTC(),
			Level:   level,
			Service: l.serviceName,
			Message: message,
			Fields:  fields,
		}
		line, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.out, `{"level":"ERROR","message":"log marshal failed: %v"}`+"\n", err)
			return
		}
		fmt.Fprintln(l.out, string(line))
		return
	}

	timestamp := now.Format("2006-01-02 15:04:05.000")
	color := l.getColorForLevel(level)
	resetColor := ""
	cyan := ""
	if l.colorEnabled {
		resetColor = ColorReset
		cyan = ColorCyan
	}

	line := fmt.Sprintf("%s[%s] [%s] [%s%s%s] %s%s",
		cyan, timestamp, formatServiceName(l.serviceName), color, formatLogLevel(level), resetColor, message, resetColor)
	for k, v := range fields {
		line += fmt.Sprintf(" %s=%s", k, v)
	}
	fmt.Fprintln(l.out, line)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log("DEBUG", fmt.Sprintf(format, args...), nil)
}

// Info logs an info message with optional formatting
func (l *Logger) Info(message string, args ...interface{}) {
	if len(args) > 0 {
		l.log("INFO", fmt.Sprintf(message, args...), nil)
	} else {
		l.log("INFO", message, nil)
	}
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log("INFO", fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log("WARN", fmt.Sprintf(format, args...), nil)
}

// Error logs an error message with optional formatting
func (l *Logger) Error(message string, args ...interface{}) {
	if len(args) > 0 {
		l.log("ERROR", fmt.Sprintf(message, args...), nil)
	} else {
		l.log("ERROR", message, nil)
	}
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", fmt.Sprintf(format, args...), nil)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log("FATAL", fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

// WithFields logs a message with additional fields
func (l *Logger) WithFields(fields map[string]string) *LogContext {
	return &LogContext{
		logger: l,
		fields: fields,
	}
}

// LogContext provides field-based logging
type LogContext struct {
	logger *Logger
	fields map[string]string
}

func (c *LogContext) Info(message string) {
	c.logger.log("INFO", message, c.fields)
}

func (c *LogContext) Error(message string) {
	c.logger.log("ERROR", message, c.fields)
}
