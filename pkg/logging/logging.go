// Package logging builds the diagnostics logger shared by the pipeline components.
// Messages go to the console and to a size-rotated log file.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the name of the rotated log file inside the log directory.
const LogFileName = "pipeline.log"

// Options configures New.
type Options struct {
	// Name is the root logger name; components append their own via Named
	Name string

	// Dir is where pipeline.log is written. Empty disables the file sink.
	Dir string

	// Level is one of debug, info, warn, error
	Level string

	// MaxSizeMB is the size at which the log file is rotated
	MaxSizeMB int

	// MaxBackups is how many rotated files are kept
	MaxBackups int

	// Console enables the stderr sink
	Console bool
}

// DefaultOptions mirrors the rotation policy of the original tool: 5 MB per file, 5 backups.
func DefaultOptions() Options {
	return Options{
		Name:       "eggsplit",
		Dir:        filepath.Join("results", "logs"),
		Level:      "info",
		MaxSizeMB:  5,
		MaxBackups: 5,
		Console:    true,
	}
}

// NewEncoderConfig returns the "time | level | name | message" layout used by both sinks.
func NewEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " | ",
	}
}

// New builds a logger from opts. The returned close function flushes and closes the
// log file; it is safe to call more than once.
func New(opts Options) (*zap.SugaredLogger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	enabler := zap.NewAtomicLevelAt(level)
	encoder := zapcore.NewConsoleEncoder(NewEncoderConfig())

	var cores []zapcore.Core
	if opts.Console {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), enabler))
	}

	var rotator *lumberjack.Logger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, errors.Wrapf(err, "creating log directory %s", opts.Dir)
		}
		rotator = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, LogFileName),
			MaxSize:    opts.MaxSizeMB, // megabytes
			MaxBackups: opts.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), enabler))
	}

	name := opts.Name
	if name == "" {
		name = "eggsplit"
	}
	logger := zap.New(zapcore.NewTee(cores...)).Sugar().Named(name)

	closeFn := func() error {
		// stderr sync errors are expected on terminals and are not worth reporting
		_ = logger.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return NewNop()
	}
	return logger
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, errors.Errorf("unknown log level %q", name)
	}
}
