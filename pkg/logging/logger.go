package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides structured logging for portalkeeper components.
// Every component logger created in one process shares a run ID and writes
// to the same rotated JSON file in ~/.portalkeeper/logs/, plus the console.
type Logger struct {
	sessionID string
	component string
	logPath   string
	sugar     *zap.SugaredLogger
	closeOnce sync.Once
}

// Options configures the shared logging backend.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Dir overrides the log directory. Empty means ~/.portalkeeper/logs.
	Dir string

	// Console enables the human-readable stderr output.
	Console bool
}

var (
	// Global run ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	console = true

	coreMu     sync.Mutex
	sharedCore zapcore.Core
	fileWriter *lumberjack.Logger
)

// Configure applies opts to the shared backend. It must be called before the
// first NewLogger call to take full effect; the level can be changed at any time.
func Configure(opts Options) error {
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	coreMu.Lock()
	defer coreMu.Unlock()

	console = opts.Console
	if opts.Dir != "" {
		logDir = opts.Dir
		initOnce = sync.Once{}
		initErr = nil
	}
	sharedCore = nil
	return nil
}

// getSessionID returns or creates the run ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".portalkeeper", "logs")
		}

		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

func logFilePath() string {
	return filepath.Join(logDir, fmt.Sprintf("%s-portalkeeper.log", getSessionID()))
}

func consoleCore() zapcore.Core {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level)
}

// fallbackCore is the console-only core used when file logging fails. The
// console core already configured is reused; one is added only when the
// console is disabled.
func fallbackCore(cores []zapcore.Core, newConsole func() zapcore.Core) zapcore.Core {
	if len(cores) == 0 {
		cores = append(cores, newConsole())
	}
	return zapcore.NewTee(cores...)
}

// buildCore returns the shared core, creating it on first use.
// File logging failures degrade to console-only output and are reported.
func buildCore() (zapcore.Core, string, error) {
	coreMu.Lock()
	defer coreMu.Unlock()

	if sharedCore != nil {
		path := ""
		if fileWriter != nil {
			path = fileWriter.Filename
		}
		return sharedCore, path, nil
	}

	var cores []zapcore.Core
	if console {
		cores = append(cores, consoleCore())
	}

	if err := initLogDirectory(); err != nil {
		sharedCore = fallbackCore(cores, consoleCore)
		return sharedCore, "", err
	}

	path := logFilePath()
	// Create the file eagerly so the path is valid before the first write
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		sharedCore = fallbackCore(cores, consoleCore)
		return sharedCore, "", fmt.Errorf("failed to open log file: %w", err)
	}
	f.Close()

	fileWriter = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	fileEncoder := zap.NewProductionEncoderConfig()
	fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
	cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoder), zapcore.AddSync(fileWriter), level))

	sharedCore = zapcore.NewTee(cores...)
	return sharedCore, path, nil
}

// NewLogger creates a new logger for a specific component.
// The logger writes to ~/.portalkeeper/logs/<run-id>-portalkeeper.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a stderr-only logger along with the error.
// Callers can check the error to detect fallback mode and log warnings.
func NewLogger(component string) (*Logger, error) {
	core, path, err := buildCore()

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)).
		Named(component).
		With(zap.String("run_id", getSessionID()))

	logger := &Logger{
		sessionID: getSessionID(),
		component: component,
		logPath:   path,
		sugar:     z.Sugar(),
	}
	if err != nil {
		logger.Warnf("failed to initialize file logging, falling back to stderr: %v", err)
	}
	return logger, err
}

// MustLogger is NewLogger for call sites that accept the stderr fallback.
func MustLogger(component string) *Logger {
	logger, _ := NewLogger(component)
	return logger
}

// FromZap wraps an existing zap logger, mainly for tests using zaptest/observer.
func FromZap(z *zap.Logger, component string) *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		sugar:     z.Named(component).Sugar(),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop(), "nop")
}

// With returns a child logger that adds the key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component,
		logPath:   l.logPath,
		sugar:     l.sugar.With(keysAndValues...),
	}
}

// Printf logs a formatted message
func (l *Logger) Printf(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// SessionID returns the current run ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes buffered entries. Safe to call multiple times.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		// Syncing stderr fails on some platforms; there is nothing to recover.
		_ = l.sugar.Sync()
	})
	return nil
}

// Shutdown closes the shared log file. Loggers keep working on the console.
func Shutdown() error {
	coreMu.Lock()
	defer coreMu.Unlock()

	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	sharedCore = nil
	return err
}

// GetSessionID returns the current global run ID
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
