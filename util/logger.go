// Package util provides low-level helpers shared by all other packages.
package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  It is a thin layer over logrus; loggers derived
// with With share the same output, level and formatter.
type Logger struct {
	entry  *logrus.Entry
	level  LogLevel
	format *prefixFormatter
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	level := LogLevel(verbosity)
	f := &prefixFormatter{}
	f.timestamps.Store(level >= LogDebug) // auto-enable timestamps in debug mode

	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(f)
	base.SetLevel(logrusLevel(level))

	return &Logger{entry: logrus.NewEntry(base), level: level, format: f}
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.format.timestamps.Store(on) }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.entry.Logger.SetOutput(w) }

// SetJSON switches to one JSON object per line.
func (l *Logger) SetJSON() {
	l.entry.Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a logger that attaches key=value to every line.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value), level: l.level, format: l.format}
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Logf(logrus.InfoLevel, format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Logf(logrus.WarnLevel, format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.entry.Logf(logrus.DebugLevel, format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Logf(logrus.TraceLevel, format, args...)
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Logf(logrus.ErrorLevel, format, args...)
}

// OpenLogFile returns a size-rotated log file writer.  maxSizeMB ≤ 0
// uses 10 MB.
func OpenLogFile(path string, maxSizeMB int) io.WriteCloser {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

func logrusLevel(l LogLevel) logrus.Level {
	switch {
	case l >= LogDebug:
		return logrus.TraceLevel
	case l == LogVerbose:
		return logrus.DebugLevel
	case l == LogNormal:
		return logrus.InfoLevel
	default:
		return logrus.ErrorLevel
	}
}

// ── formatter ────────────────────────────────────────────────────────

// prefixFormatter renders "[INF] message key=value" lines, optionally
// preceded by a 15:04:05.000 timestamp.
type prefixFormatter struct {
	timestamps atomic.Bool
}

var levelTags = map[logrus.Level]string{
	logrus.PanicLevel: "ERR",
	logrus.FatalLevel: "ERR",
	logrus.ErrorLevel: "ERR",
	logrus.WarnLevel:  "WRN",
	logrus.InfoLevel:  "INF",
	logrus.DebugLevel: "VRB",
	logrus.TraceLevel: "DBG",
}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if f.timestamps.Load() {
		buf.WriteString(e.Time.Format("15:04:05.000"))
		buf.WriteByte(' ')
	}
	fmt.Fprintf(&buf, "[%s] %s", levelTags[e.Level], e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%v", k, e.Data[k])
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
