package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

var (
	currentLevel = LevelInfo
	mu           sync.Mutex
	base         = newZap(os.Stdout)
)

// SetLevel sets the global log level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = l
}

// ParseLevel maps a config string to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "quiet":
		return LevelError
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Setup points the logger at w.
func Setup(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = newZap(w)
}

// Debug logs verbose tracing.
func Debug(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		sugar().Debugf(format, v...)
	}
}

// Info logs informative messages if the level allows.
func Info(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		sugar().Infof(format, v...)
	}
}

// Error logs error messages.
func Error(format string, v ...interface{}) {
	if enabled(LevelError) {
		sugar().Errorf(format, v...)
	}
}

// Fatal logs independent of error level and exits.
func Fatal(format string, v ...interface{}) {
	s := sugar()
	s.Errorf("FATAL: "+format, v...)
	_ = s.Sync()
	os.Exit(1)
}

// Sync flushes buffered entries.
func Sync() {
	_ = sugar().Sync()
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel >= l
}

func sugar() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	// skip this package's helpers so caller points at the real call site
	return base.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func newZap(w io.Writer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	return zap.New(core, zap.AddCaller())
}

// String renders a level for startup logs.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelDebug:
		return "debug"
	}
	return "info"
}
