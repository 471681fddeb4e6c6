// Package logging provides config-driven categorized file-based logging for labRAT.
// Logs are written to .labrat/logs/ with separate files per category.
// File logging is controlled by logging.file in labrat.yaml - when false, no logs are written.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Boot/initialization
	CategoryLauncher  Category = "launcher"  // Launch sequence (version gate, install, run)
	CategoryPython    Category = "python"    // Interpreter discovery and version probing
	CategoryPreflight Category = "preflight" // Directory and stimulus checks
	CategoryRandomize Category = "randomize" // Randomization list generation
	CategorySession   Category = "session"   // Labeler session state and progress
	CategoryStore     Category = "store"     // Launch ledger operations
	CategoryWatch     Category = "watch"     // Filesystem progress watcher
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type loggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	File  bool   `yaml:"file"`
}

// configFile structure for reading labrat.yaml
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	home      string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the experiment home path.
func Initialize(homeDir string) error {
	if homeDir == "" {
		return fmt.Errorf("experiment home path required")
	}

	home = homeDir

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.File = false
	}

	logsDir = config.Dir
	if logsDir == "" {
		logsDir = filepath.Join(home, ".labrat", "logs")
	} else if !filepath.IsAbs(logsDir) {
		logsDir = filepath.Join(home, logsDir)
	}

	// Only create the logs directory when file logging is enabled
	if !config.File {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== labRAT Logging Initialized ===")
	bootLogger.Info("Experiment home: %s", home)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging config from labrat.yaml in the experiment home
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(home, "labrat.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file = no file logging
			config = loggingConfig{Level: "info"}
			logLevel = LevelInfo
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// EnableForTest forces file logging into the given directory.
// Test helper; production code goes through Initialize.
func EnableForTest(dir string) {
	configMu.Lock()
	config = loggingConfig{Level: "debug", File: true}
	logLevel = LevelDebug
	configMu.Unlock()
	logsDir = dir
}

// IsFileLoggingEnabled returns whether file logging is enabled
func IsFileLoggingEnabled() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.File
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if file logging is disabled.
func Get(category Category) *Logger {
	if !IsFileLoggingEnabled() {
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

	// Create log file with date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

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

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown)
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
// These are no-ops if file logging is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Launcher logs to the launcher category
func Launcher(format string, args ...interface{}) {
	Get(CategoryLauncher).Info(format, args...)
}

// LauncherDebug logs debug to the launcher category
func LauncherDebug(format string, args ...interface{}) {
	Get(CategoryLauncher).Debug(format, args...)
}

// LauncherWarn logs warning to the launcher category
func LauncherWarn(format string, args ...interface{}) {
	Get(CategoryLauncher).Warn(format, args...)
}

// LauncherError logs error to the launcher category
func LauncherError(format string, args ...interface{}) {
	Get(CategoryLauncher).Error(format, args...)
}

// Python logs to the python category
func Python(format string, args ...interface{}) {
	Get(CategoryPython).Info(format, args...)
}

// PythonDebug logs debug to the python category
func PythonDebug(format string, args ...interface{}) {
	Get(CategoryPython).Debug(format, args...)
}

// PythonError logs error to the python category
func PythonError(format string, args ...interface{}) {
	Get(CategoryPython).Error(format, args...)
}

// Preflight logs to the preflight category
func Preflight(format string, args ...interface{}) {
	Get(CategoryPreflight).Info(format, args...)
}

// PreflightDebug logs debug to the preflight category
func PreflightDebug(format string, args ...interface{}) {
	Get(CategoryPreflight).Debug(format, args...)
}

// PreflightWarn logs warning to the preflight category
func PreflightWarn(format string, args ...interface{}) {
	Get(CategoryPreflight).Warn(format, args...)
}

// Randomize logs to the randomize category
func Randomize(format string, args ...interface{}) {
	Get(CategoryRandomize).Info(format, args...)
}

// RandomizeDebug logs debug to the randomize category
func RandomizeDebug(format string, args ...interface{}) {
	Get(CategoryRandomize).Debug(format, args...)
}

// RandomizeWarn logs warning to the randomize category
func RandomizeWarn(format string, args ...interface{}) {
	Get(CategoryRandomize).Warn(format, args...)
}

// Session logs to the session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// SessionError logs error to the session category
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

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debug(format, args...)
}

// WatchError logs error to the watch category
func WatchError(format string, args ...interface{}) {
	Get(CategoryWatch).Error(format, args...)
}

// =============================================================================
// LABELER-SCOPED LOGGING
// =============================================================================

// LabelerLogger provides labeler-scoped logging with the labeler ID prefixed
type LabelerLogger struct {
	logger    *Logger
	labelerID string
}

// WithLabeler creates a labeler-scoped logger
func WithLabeler(category Category, labelerID string) *LabelerLogger {
	return &LabelerLogger{
		logger:    Get(category),
		labelerID: labelerID,
	}
}

func (r *LabelerLogger) formatMsg(format string, args ...interface{}) string {
	return fmt.Sprintf("[labeler:%s] %s", r.labelerID, fmt.Sprintf(format, args...))
}

func (r *LabelerLogger) Debug(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelDebug {
		return
	}
	r.logger.logger.Printf("[DEBUG] %s", r.formatMsg(format, args...))
}

func (r *LabelerLogger) Info(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelInfo {
		return
	}
	r.logger.logger.Printf("[INFO] %s", r.formatMsg(format, args...))
}

func (r *LabelerLogger) Warn(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelWarn {
		return
	}
	r.logger.logger.Printf("[WARN] %s", r.formatMsg(format, args...))
}

func (r *LabelerLogger) Error(format string, args ...interface{}) {
	if r.logger.logger == nil {
		return
	}
	r.logger.logger.Printf("[ERROR] %s", r.formatMsg(format, args...))
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

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
