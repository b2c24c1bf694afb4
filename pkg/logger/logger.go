package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the auth service and its client packages.
// Init(level) picks the threshold; Named(component) returns a prefixed view.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
	exit               = os.Exit
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = ParseLevel(l)
}

// ParseLevel maps a level name to a Level.
func ParseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	}
	return LevelInfo
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}

// SetOutput redirects log output, e.g. to a buffer in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", 0)
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func write(l Level, component, format string, v ...interface{}) {
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(l.String()))
	b.WriteString("] ")
	if component != "" {
		b.WriteString(component)
		b.WriteString(": ")
	}
	b.WriteString(fmt.Sprintf(format, v...))
	mu.RLock()
	out := logger
	mu.RUnlock()
	out.Print(b.String())
}

// Entry is a component-scoped logger. The zero value logs without a prefix.
type Entry struct {
	component string
}

// Named returns an Entry whose lines are prefixed with component.
func Named(component string) Entry { return Entry{component: component} }

func (e Entry) Debugf(format string, v ...interface{}) {
	if shouldLog(LevelDebug) {
		write(LevelDebug, e.component, format, v...)
	}
}

func (e Entry) Infof(format string, v ...interface{}) {
	if shouldLog(LevelInfo) {
		write(LevelInfo, e.component, format, v...)
	}
}

func (e Entry) Warnf(format string, v ...interface{}) {
	if shouldLog(LevelWarn) {
		write(LevelWarn, e.component, format, v...)
	}
}

func (e Entry) Errorf(format string, v ...interface{}) {
	if shouldLog(LevelError) {
		write(LevelError, e.component, format, v...)
	}
}

// Fatalf always logs and terminates the process.
func (e Entry) Fatalf(format string, v ...interface{}) {
	write(LevelFatal, e.component, format, v...)
	exit(1)
}

var root Entry

func Debugf(format string, v ...interface{}) { root.Debugf(format, v...) }
func Infof(format string, v ...interface{})  { root.Infof(format, v...) }
func Warnf(format string, v ...interface{})  { root.Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { root.Errorf(format, v...) }
func Fatalf(format string, v ...interface{}) { root.Fatalf(format, v...) }

func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return level.String()
}
