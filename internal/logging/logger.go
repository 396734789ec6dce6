// Package logging provides structured logging for the control-plane firmware.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config holds logging configuration.
type Config struct {
	Level LogLevel
	// Format is "text" or "json". Empty defaults to "text".
	Format  string
	Output  io.Writer
	Sync    bool
	NoColor bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger writes leveled lines to an io.Writer, with structured context
// fields and an optional JSON format.
type Logger struct {
	out     io.Writer
	level   LogLevel
	format  string
	noColor bool
	mu      *sync.Mutex
	ctx     []any // flat key, value, key, value ...
}

// NewLogger creates a new logger from config. A nil config yields DefaultConfig().
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		out:     output,
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
		mu:      &sync.Mutex{},
	}
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// with returns a derived logger carrying additional context fields.
func (l *Logger) with(kv ...any) *Logger {
	child := &Logger{
		out:     l.out,
		level:   l.level,
		format:  l.format,
		noColor: l.noColor,
		mu:      l.mu,
		ctx:     append(append([]any{}, l.ctx...), kv...),
	}
	return child
}

// WithTask returns a logger annotating every line with the task id.
func (l *Logger) WithTask(taskID uint32) *Logger {
	return l.with("task_id", taskID)
}

// WithComponent returns a logger annotating every line with a component name
// (e.g. "driver", "irq", "stager").
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithError returns a logger annotating every line with an error value.
func (l *Logger) WithError(err error) *Logger {
	return l.with("error", err)
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	all := append(append([]any{}, l.ctx...), args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		rec := map[string]any{
			"time":  time.Now().Format(time.RFC3339Nano),
			"level": level.String(),
			"msg":   msg,
		}
		for i := 0; i+1 < len(all); i += 2 {
			rec[fmt.Sprintf("%v", all[i])] = all[i+1]
		}
		enc, err := json.Marshal(rec)
		if err != nil {
			fmt.Fprintf(l.out, "[%s] %s%s (marshal error: %v)\n", level, msg, formatArgs(all), err)
			return
		}
		fmt.Fprintln(l.out, string(enc))
		return
	}

	fmt.Fprintf(l.out, "%s [%s] %s%s\n", time.Now().Format("2006-01-02T15:04:05.000"), level, msg, formatArgs(all))
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// Printf-style logging, kept for call sites that prefer formatted messages.
func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, fmt.Sprintf(format, args...)) }

// Printf satisfies callers that want a drop-in for log.Printf at info level.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Global convenience functions operating on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
