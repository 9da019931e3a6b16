// Package logger provides the zap-based logger shared by all imageforge
// binaries. Output destination, level, and rotation are driven by a single
// Config so every component logs the same way.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Where log messages go: "stderr", "stdout", or "logfile".
	Type string `mapstructure:"type"`
	// Path of the log file when Type is "logfile". Parent directories are
	// created as needed.
	File string `mapstructure:"file"`
	// 0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug.
	Level int8 `mapstructure:"level"`
	// Maximum size of the log file in megabytes before rotation.
	MaxSize int `mapstructure:"max-size"`
	// Number of rotated files to keep.
	NumRotatedFiles int `mapstructure:"num-rotated-files"`
	// Developer enables debug-level logging with stack traces to stdout,
	// ignoring the other settings.
	Developer bool `mapstructure:"developer"`
}

// Logger wraps zap.Logger so callers get a configured instance without
// knowing how it was assembled.
type Logger struct {
	*zap.Logger
}

func New(cfg Config) (*Logger, error) {
	if cfg.Developer {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return &Logger{dev}, nil
	}

	var sink zapcore.WriteSyncer
	switch cfg.Type {
	case "", "stderr":
		sink = zapcore.Lock(os.Stderr)
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "logfile":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.NumRotatedFiles,
		})
	default:
		return nil, fmt.Errorf("unknown log type %q", cfg.Type)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, levelFor(cfg.Level))
	return &Logger{zap.New(core)}, nil
}

func levelFor(level int8) zapcore.Level {
	switch {
	case level <= 0:
		return zapcore.FatalLevel
	case level == 1:
		return zapcore.ErrorLevel
	case level == 2:
		return zapcore.WarnLevel
	case level == 3:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// Sync flushes buffered log entries. Sync errors on stderr/stdout are
// expected on some platforms and ignored by callers.
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
