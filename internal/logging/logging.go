// Package logging is the single structured-logging entry point for every
// auralcore component. Nothing in this module calls fmt.Printf or the
// stdlib log package directly. A component that logs (config.Watcher) is
// handed a *Logger at construction and tags its own component name into
// every line; the other components do not log.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Level mirrors the log_level configuration key (spec §6).
type Level = log.Level

const (
	LevelDebug Level = log.DebugLevel
	LevelInfo  Level = log.InfoLevel
	LevelWarn  Level = log.WarnLevel
	LevelError Level = log.ErrorLevel
)

// Logger is a component-tagged leveled logger. It writes straight to the
// io.Writer given to New; this package adds no buffering of its own.
type Logger struct {
	*log.Logger
}

// New builds a root logger writing to w at the given level, e.g. os.Stderr
// for a CLI host.
func New(w io.Writer, level Level) *Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	l.SetLevel(level)
	return &Logger{Logger: l}
}

// Default returns a logger writing to stderr at info level, used by the
// diagnostics console and CLI host before a config has been loaded.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

// With returns a derived logger tagged with the given component name,
// e.g. base.With("env") for the environment tracker.
func (l *Logger) With(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// SetLevel updates the level in place, used when config.Watcher observes a
// log_level change.
func (l *Logger) SetLevel(level Level) { l.Logger.SetLevel(level) }
