// Package logging provides category-based file logging for warden. Each
// category writes to its own file under <dir>/logs. Logging is a silent no-op
// until Initialize is called with debug enabled, so the engines can log freely
// without affecting production runs.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies the subsystem a log line belongs to.
type Category string

const (
	CategoryBoot           Category = "boot"
	CategoryPolicy         Category = "policy"
	CategoryDrift          Category = "drift"
	CategoryInference      Category = "inference"
	CategoryReview         Category = "review"
	CategoryCounterfactual Category = "counterfactual"
	CategoryFutures        Category = "futures"
	CategoryFederated      Category = "federated"
	CategoryAutopilot      Category = "autopilot"
	CategoryRunbook        Category = "runbook"
	CategoryStore          Category = "store"
	CategoryArtifact       Category = "artifact"
	CategoryLLM            Category = "llm"
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger bound to one category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	enabled   bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. Call once at startup; when debug
// is false every logging call is a no-op.
func Initialize(dir string, debug bool, level string) error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	enabled = debug
	logLevel = parseLevel(level)
	if !enabled {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("logging directory required")
	}
	logsDir = filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Enabled reports whether logging is active.
func Enabled() bool {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	return enabled
}

// Get returns the logger for a category, creating its file on first use.
func Get(category Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[category]
	on := enabled
	loggersMu.RUnlock()
	if ok {
		return l
	}
	if !on {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	path := filepath.Join(logsDir, string(category)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] cannot open %s: %v\n", path, err)
		l := &Logger{category: category}
		loggers[category] = l
		return l
	}
	l = &Logger{
		category: category,
		logger:   log.New(f, "", log.LstdFlags|log.Lmicroseconds),
		file:     f,
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, prefix, format string, args ...interface{}) {
	if l == nil || l.logger == nil || level < logLevel {
		return
	}
	l.logger.Printf("[%s] %s", prefix, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Close flushes and closes all category files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Timer measures a named operation's duration.
type Timer struct {
	category Category
	name     string
	start    time.Time
}

// StartTimer begins timing an operation in a category.
func StartTimer(category Category, name string) *Timer {
	return &Timer{category: category, name: name, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	Get(t.category).Debug("%s took %s", t.name, time.Since(t.start))
}

// Per-category convenience helpers, mirroring each call site's dominant level.

func PolicyDebug(format string, args ...interface{})    { Get(CategoryPolicy).Debug(format, args...) }
func Drift(format string, args ...interface{})          { Get(CategoryDrift).Info(format, args...) }
func DriftDebug(format string, args ...interface{})     { Get(CategoryDrift).Debug(format, args...) }
func Inference(format string, args ...interface{})      { Get(CategoryInference).Info(format, args...) }
func InferenceDebug(format string, args ...interface{}) { Get(CategoryInference).Debug(format, args...) }
func Review(format string, args ...interface{})         { Get(CategoryReview).Info(format, args...) }
func ReviewDebug(format string, args ...interface{})    { Get(CategoryReview).Debug(format, args...) }
func Futures(format string, args ...interface{})        { Get(CategoryFutures).Info(format, args...) }
func FuturesDebug(format string, args ...interface{})   { Get(CategoryFutures).Debug(format, args...) }
func Federated(format string, args ...interface{})      { Get(CategoryFederated).Info(format, args...) }
func Autopilot(format string, args ...interface{})      { Get(CategoryAutopilot).Info(format, args...) }
func Runbook(format string, args ...interface{})        { Get(CategoryRunbook).Info(format, args...) }
func Store(format string, args ...interface{})          { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})     { Get(CategoryStore).Debug(format, args...) }
func Artifact(format string, args ...interface{})       { Get(CategoryArtifact).Info(format, args...) }
func LLMDebug(format string, args ...interface{})       { Get(CategoryLLM).Debug(format, args...) }
