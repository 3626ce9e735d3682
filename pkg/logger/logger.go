package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu     sync.RWMutex
	base   = newLogger(os.Stderr)
	levels = map[string]LogLevel{
		"debug":   DEBUG,
		"info":    INFO,
		"warn":    WARN,
		"warning": WARN,
		"error":   ERROR,
	}
)

func newLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(out).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// SetOutput redirects all log output. Tests pass a buffer here.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	lvl := base.GetLevel()
	base = zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// SetLevel sets the minimum level by name. Unknown names are ignored and
// reported as false.
func SetLevel(name string) bool {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return false
	}
	mu.Lock()
	base = base.Level(toZerolog(lvl))
	mu.Unlock()
	return true
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	switch base.GetLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return DEBUG
	case zerolog.WarnLevel:
		return WARN
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return ERROR
	default:
		return INFO
	}
}

func toZerolog(l LogLevel) zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func logMessage(level LogLevel, component string, message string, fields map[string]interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()

	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.Debug()
	case WARN:
		ev = l.Warn()
	case ERROR:
		ev = l.Error()
	default:
		ev = l.Info()
	}
	if ev == nil {
		return
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}
