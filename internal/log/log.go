// Package log writes wikictl's diagnostic log.
//
// Lines have the shape
//
//	2026-01-02T15:04:05 [INFO] [bridge] Invocation finished target="Main Page" state=completed
//
// and go to the debug log file (--debug or WIKICTL_DEBUG) and to any
// listeners, which is how --verbose echoes them on stderr. Nothing is logged
// until Setup runs.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/wikictl/internal/pubsub"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a level name (case-insensitive) to a Level. The empty
// string is debug.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug", "":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelDebug, fmt.Errorf("unknown log level %q", s)
}

// Category tags the subsystem a line came from.
type Category string

const (
	CatPump   Category = "pump"
	CatBridge Category = "bridge"
	CatWiki   Category = "wiki"
	CatConfig Category = "config"
	CatCache  Category = "cache"
	CatStore  Category = "store"
	CatWatch  Category = "watch"
	CatTrace  Category = "trace"
	CatCmd    Category = "cmd"
)

// Options configures Setup. Path and Writer are alternatives; with neither,
// lines only reach listeners.
type Options struct {
	Path     string
	Writer   io.Writer
	MinLevel Level
}

type logger struct {
	mu       sync.Mutex
	w        io.Writer
	file     *os.File
	minLevel Level
	broker   *pubsub.Broker[string]
}

var (
	current   *logger
	currentMu sync.RWMutex
)

// Setup installs the process logger, replacing any earlier one. The returned
// function flushes listeners and closes the log file.
func Setup(opts Options) (func(), error) {
	l := &logger{
		w:        opts.Writer,
		minLevel: opts.MinLevel,
		broker:   pubsub.NewBroker[string](),
	}
	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: operator-chosen log path
		if err != nil {
			return nil, fmt.Errorf("opening log %s: %w", opts.Path, err)
		}
		l.file, l.w = f, f
	}

	currentMu.Lock()
	prev := current
	current = l
	currentMu.Unlock()
	prev.close()

	return func() {
		currentMu.Lock()
		if current == l {
			current = nil
		}
		currentMu.Unlock()
		l.close()
	}, nil
}

func (l *logger) close() {
	if l == nil {
		return
	}
	l.broker.Close()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
		l.w = nil
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) { write(LevelDebug, cat, msg, fields) }

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) { write(LevelInfo, cat, msg, fields) }

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) { write(LevelWarn, cat, msg, fields) }

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) { write(LevelError, cat, msg, fields) }

// ErrorErr logs at error level with err appended as the error field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	errText := "<nil>"
	if err != nil {
		errText = err.Error()
	}
	write(LevelError, cat, msg, append(fields, "error", errText))
}

func write(level Level, cat Category, msg string, fields []any) {
	currentMu.RLock()
	l := current
	currentMu.RUnlock()
	if l == nil || level < l.minLevel {
		return
	}

	line := format(time.Now(), level, cat, msg, fields)

	l.mu.Lock()
	if l.w != nil {
		_, _ = io.WriteString(l.w, line)
	}
	l.mu.Unlock()
	l.broker.Publish(pubsub.LoggedEvent, line)
}

func format(now time.Time, level Level, cat Category, msg string, fields []any) string {
	var b strings.Builder
	b.WriteString(now.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " [%s] [%s] %s", level, cat, msg)
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		value := "<missing>"
		if i+1 < len(fields) {
			value = fmt.Sprint(fields[i+1])
		}
		fmt.Fprintf(&b, " %s=%s", key, quote(value))
	}
	b.WriteByte('\n')
	return b.String()
}

// quote keeps page titles with spaces readable as one value.
func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		return strconv.Quote(v)
	}
	return v
}

// Listener receives formatted lines.
type Listener = pubsub.ContinuousListener[string]

// NewListener subscribes to lines logged after the call until ctx is done or
// the logger is replaced. It returns nil before Setup.
func NewListener(ctx context.Context) *Listener {
	currentMu.RLock()
	l := current
	currentMu.RUnlock()
	if l == nil {
		return nil
	}
	return pubsub.NewContinuousListener(ctx, l.broker)
}
