// Package logging provides config-driven categorized file-based logging for
// gamesmith. Logs are written to <state>/logs/ with separate files per
// category. Logging is disabled unless debug mode is turned on via Configure
// or the GAMESMITH_DEBUG environment variable - when off, no files are
// created and every call is a no-op.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup, config, shutdown
	CategoryAPI          Category = "api"          // HTTP/WebSocket surface
	CategorySession      Category = "session"      // Session lifecycle, status transitions
	CategoryStore        Category = "store"        // SQLite persistence
	CategoryModel        Category = "model"        // LLM calls
	CategoryOrchestrator Category = "orchestrator" // Context building, response validation
	CategoryExecutor     Category = "executor"     // Tool-call batch execution
	CategoryAssembler    Category = "assembler"    // Document assembly, diagnostics
	CategoryImages       Category = "images"       // Image generation, asset storage
	CategoryDirectives   Category = "directives"   // Directive overrides, hot reload
)

// Options mirrors the relevant parts of config.LoggingConfig to avoid a
// circular import; cmd wires the loaded config in via Configure.
type Options struct {
	Debug      bool
	Level      string
	Categories map[string]bool
	JSONFormat bool
}

// StructuredLogEntry is the JSON line format used when JSONFormat is on.
type StructuredLogEntry struct {
	Timestamp int64  `json:"ts"` // Unix milliseconds
	Category  string `json:"cat"`
	Level     string `json:"lvl"`
	Message   string `json:"msg"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	stateDir  string
	config    Options
	configMu  sync.RWMutex
	logLevel  int
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Configure sets logging options programmatically. Call before Initialize;
// environment overrides still apply on top.
func Configure(opts Options) {
	configMu.Lock()
	defer configMu.Unlock()
	config = opts
	logLevel = parseLevel(opts.Level)
}

// Initialize sets up the logging directory under the given state directory.
// Should be called once at startup. A no-op unless debug mode is enabled.
func Initialize(state string) error {
	if state == "" {
		return fmt.Errorf("state directory required")
	}

	stateDir = state
	logsDir = filepath.Join(stateDir, "logs")

	applyEnvOverrides()

	if !IsDebugMode() {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== gamesmith logging initialized ===")
	boot.Info("State directory: %s", stateDir)
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", config.Level)
	if len(config.Categories) > 0 {
		enabled := 0
		for _, on := range config.Categories {
			if on {
				enabled++
			}
		}
		boot.Info("Enabled categories: %d/%d", enabled, len(config.Categories))
	} else {
		boot.Info("All categories enabled (no category filter)")
	}

	return nil
}

// applyEnvOverrides lets the environment force debug logging on without
// touching the config file. GAMESMITH_LOG_CATEGORIES is a comma list; when
// set, only the listed categories log.
func applyEnvOverrides() {
	configMu.Lock()
	defer configMu.Unlock()

	if v := os.Getenv("GAMESMITH_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		config.Debug = true
	}
	if v := os.Getenv("GAMESMITH_LOG_LEVEL"); v != "" {
		config.Level = v
		logLevel = parseLevel(v)
	}
	if v := os.Getenv("GAMESMITH_LOG_JSON"); v == "1" || strings.EqualFold(v, "true") {
		config.JSONFormat = true
	}
	if v := os.Getenv("GAMESMITH_LOG_CATEGORIES"); v != "" {
		cats := make(map[string]bool)
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cats[c] = true
			}
		}
		config.Categories = cats
	}
}

func parseLevel(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.Debug
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.Debug {
		return false
	}
	if config.Categories == nil {
		return true // All enabled by default in debug mode
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return false // A category filter is exhaustive
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}
	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if IsJSONFormat() {
		l.logJSON("debug", msg)
	} else {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if IsJSONFormat() {
		l.logJSON("info", msg)
	} else {
		l.logger.Printf("[INFO] %s", msg)
	}
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if IsJSONFormat() {
		l.logJSON("warn", msg)
	} else {
		l.logger.Printf("[WARN] %s", msg)
	}
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if IsJSONFormat() {
		l.logJSON("error", msg)
	} else {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// IsJSONFormat returns whether JSON logging is enabled.
func IsJSONFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// BootError logs an error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// APIWarn logs a warning to the api category
func APIWarn(format string, args ...interface{}) {
	Get(CategoryAPI).Warn(format, args...)
}

// APIError logs an error to the api category
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// Session logs to the session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// SessionWarn logs a warning to the session category
func SessionWarn(format string, args ...interface{}) {
	Get(CategorySession).Warn(format, args...)
}

// SessionError logs an error to the session category
func SessionError(format string, args ...interface{}) {
	Get(CategorySession).Error(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreWarn logs a warning to the store category
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// StoreError logs an error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Model logs to the model category
func Model(format string, args ...interface{}) {
	Get(CategoryModel).Info(format, args...)
}

// ModelDebug logs debug to the model category
func ModelDebug(format string, args ...interface{}) {
	Get(CategoryModel).Debug(format, args...)
}

// ModelWarn logs a warning to the model category
func ModelWarn(format string, args ...interface{}) {
	Get(CategoryModel).Warn(format, args...)
}

// ModelError logs an error to the model category
func ModelError(format string, args ...interface{}) {
	Get(CategoryModel).Error(format, args...)
}

// Orchestrator logs to the orchestrator category
func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}

// OrchestratorDebug logs debug to the orchestrator category
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}

// OrchestratorWarn logs a warning to the orchestrator category
func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warn(format, args...)
}

// OrchestratorError logs an error to the orchestrator category
func OrchestratorError(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Error(format, args...)
}

// Executor logs to the executor category
func Executor(format string, args ...interface{}) {
	Get(CategoryExecutor).Info(format, args...)
}

// ExecutorDebug logs debug to the executor category
func ExecutorDebug(format string, args ...interface{}) {
	Get(CategoryExecutor).Debug(format, args...)
}

// ExecutorWarn logs a warning to the executor category
func ExecutorWarn(format string, args ...interface{}) {
	Get(CategoryExecutor).Warn(format, args...)
}

// ExecutorError logs an error to the executor category
func ExecutorError(format string, args ...interface{}) {
	Get(CategoryExecutor).Error(format, args...)
}

// Assembler logs to the assembler category
func Assembler(format string, args ...interface{}) {
	Get(CategoryAssembler).Info(format, args...)
}

// AssemblerDebug logs debug to the assembler category
func AssemblerDebug(format string, args ...interface{}) {
	Get(CategoryAssembler).Debug(format, args...)
}

// AssemblerWarn logs a warning to the assembler category
func AssemblerWarn(format string, args ...interface{}) {
	Get(CategoryAssembler).Warn(format, args...)
}

// AssemblerError logs an error to the assembler category
func AssemblerError(format string, args ...interface{}) {
	Get(CategoryAssembler).Error(format, args...)
}

// Images logs to the images category
func Images(format string, args ...interface{}) {
	Get(CategoryImages).Info(format, args...)
}

// ImagesDebug logs debug to the images category
func ImagesDebug(format string, args ...interface{}) {
	Get(CategoryImages).Debug(format, args...)
}

// ImagesWarn logs a warning to the images category
func ImagesWarn(format string, args ...interface{}) {
	Get(CategoryImages).Warn(format, args...)
}

// ImagesError logs an error to the images category
func ImagesError(format string, args ...interface{}) {
	Get(CategoryImages).Error(format, args...)
}

// Directives logs to the directives category
func Directives(format string, args ...interface{}) {
	Get(CategoryDirectives).Info(format, args...)
}

// DirectivesDebug logs debug to the directives category
func DirectivesDebug(format string, args ...interface{}) {
	Get(CategoryDirectives).Debug(format, args...)
}

// DirectivesWarn logs a warning to the directives category
func DirectivesWarn(format string, args ...interface{}) {
	Get(CategoryDirectives).Warn(format, args...)
}

// DirectivesError logs an error to the directives category
func DirectivesError(format string, args ...interface{}) {
	Get(CategoryDirectives).Error(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
