// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
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
// and level prefixes.  Child loggers prefix every message with their
// dotted component name, e.g. "network.server:8080".
type Logger struct {
	level      LogLevel
	name       string
	output     io.Writer
	timestamps bool // if true, prepend wall-clock timestamps
	color      bool

	mu sync.Mutex
	zl zerolog.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// Child returns a logger for a sub-component.  It inherits the
// parent's level, output, and formatting as they are at call time.
func (l *Logger) Child(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	c := &Logger{
		level:      l.level,
		name:       full,
		output:     l.output,
		timestamps: l.timestamps,
		color:      l.color,
	}
	c.rebuild()
	return c
}

// Name returns the dotted component name ("" for the root logger).
func (l *Logger) Name() string { return l.name }

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// SetColor toggles ANSI colouring of level prefixes.
func (l *Logger) SetColor(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = on
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write("DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

func (l *Logger) write(tag, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.name != "" {
		msg = l.name + ": " + msg
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Level filtering happens above; the event is emitted without a
	// zerolog level so the global zerolog level never drops it.
	l.zl.Log().Str(zerolog.LevelFieldName, tag).Msg(msg)
}

// rebuild recreates the zerolog backend.  Callers hold l.mu.
func (l *Logger) rebuild() {
	cw := zerolog.ConsoleWriter{
		Out:        zerolog.SyncWriter(l.output),
		NoColor:    !l.color,
		TimeFormat: "15:04:05.000",
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			return "[" + s + "]"
		},
	}
	if l.timestamps {
		cw.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		l.zl = zerolog.New(cw).With().Timestamp().Logger()
		return
	}
	cw.PartsOrder = []string{zerolog.LevelFieldName, zerolog.MessageFieldName}
	l.zl = zerolog.New(cw)
}
