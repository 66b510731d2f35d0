package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging for rendercrawl components.
//
// Every logger carries its component name and the process session ID as
// fields. Output goes to stderr unless a log directory has been configured,
// in which case entries are written as JSON to <dir>/<session-id>-rendercrawl.log.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	sugar     *zap.SugaredLogger
	logPath   string
	ownsFile  bool
	closeOnce sync.Once
}

// Settings controls where and how verbosely new loggers write.
type Settings struct {
	// Dir is the directory for log files; empty means stderr only
	Dir string

	// Verbosity is one of quiet, normal, verbose, debug
	Verbosity string
}

var (
	// Global session ID for the current process
	sessionID     string
	sessionIDOnce sync.Once

	settingsMu sync.RWMutex
	settings   = Settings{Verbosity: "normal"}
)

// getSessionID returns or creates the session ID for this process
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// Configure replaces the settings used by subsequent NewLogger calls.
func Configure(s Settings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if s.Verbosity == "" {
		s.Verbosity = "normal"
	}
	settings = s
}

func currentSettings() Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings
}

// LevelFor maps a verbosity name onto a zap level. Unknown names map to info.
func LevelFor(verbosity string) zapcore.Level {
	switch verbosity {
	case "quiet":
		return zapcore.WarnLevel
	case "verbose", "debug":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	return cfg
}

// NewLogger creates a new logger for a specific component.
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
// Callers can check the error to detect fallback mode and log warnings.
func NewLogger(component string) (*Logger, error) {
	s := currentSettings()
	level := LevelFor(s.Verbosity)

	if s.Dir == "" {
		return newStderrLogger(component, level, s.Verbosity == "debug"), nil
	}

	if err := os.MkdirAll(s.Dir, 0750); err != nil {
		err = fmt.Errorf("failed to create log directory: %w", err)
		return newFallbackLogger(component, level, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(s.Dir, fmt.Sprintf("%s-rendercrawl.log", sessID))

	// Append mode: every component of the process shares one file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, level, err), err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(file), level)
	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		sugar:     newSugar(core, component, sessID),
		logPath:   logPath,
		ownsFile:  true,
	}, nil
}

// NewWithCore builds a logger over an existing zap core. Used to route output
// into tests or a caller-owned sink.
func NewWithCore(component string, core zapcore.Core) *Logger {
	sessID := getSessionID()
	return &Logger{
		sessionID: sessID,
		component: component,
		sugar:     newSugar(core, component, sessID),
	}
}

// Nop returns a logger that discards everything.
func Nop(component string) *Logger {
	return NewWithCore(component, zapcore.NewNopCore())
}

func newSugar(core zapcore.Core, component, sessID string) *zap.SugaredLogger {
	return zap.New(core).Sugar().With("component", component, "session", sessID)
}

func newStderrLogger(component string, level zapcore.Level, withCaller bool) *Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), level)
	sessID := getSessionID()
	opts := []zap.Option{}
	if withCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &Logger{
		sessionID: sessID,
		component: component,
		sugar:     zap.New(core, opts...).Sugar().With("component", component, "session", sessID),
	}
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, level zapcore.Level, err error) *Logger {
	l := newStderrLogger(component, level, false)
	l.Warnf("failed to initialize file logging: %v", err)
	l.Warnf("falling back to stderr logging")
	return l
}

// Printf logs a formatted message at info level
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

// Infow logs a message with structured key/value pairs
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warnw logs a warning with structured key/value pairs
func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// With returns a child logger that adds the given key/value pairs to every
// entry. The child shares the parent's output and must not outlive it.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component,
		file:      l.file,
		sugar:     l.sugar.With(keysAndValues...),
		logPath:   l.logPath,
	}
}

// Zap exposes the underlying zap logger for libraries that need one.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Writer returns an io.Writer that writes to this logger's destination
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file, or "" when logging to stderr
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes buffered entries and closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		_ = l.sugar.Sync()
		if l.ownsFile && l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}
