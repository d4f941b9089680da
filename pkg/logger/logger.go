// Package logger holds the process-wide zap logger and its helpers.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Log is the process logger. It stays a no-op until Init is called.
	Log = zap.NewNop()

	level = zap.NewAtomicLevel()
)

// Init replaces the process logger. Its level can be changed later with SetLevel.
func Init(lvl, format, outputPath string) error {
	atom, err := zap.ParseAtomicLevel(lvl)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	l, err := build(atom, format, outputPath)
	if err != nil {
		return err
	}
	level, Log = atom, l
	return nil
}

// New builds a standalone logger at a fixed level.
func New(lvl, format, outputPath string) (*zap.Logger, error) {
	atom, err := zap.ParseAtomicLevel(lvl)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return build(atom, format, outputPath)
}

func build(atom zap.AtomicLevel, format, outputPath string) (*zap.Logger, error) {
	sink, err := openSink(outputPath)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(newEncoder(format), sink, atom)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func openSink(outputPath string) (zapcore.WriteSyncer, error) {
	switch outputPath {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	file, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.AddSync(file), nil
}

// SetLevel changes the level of the logger built by Init.
func SetLevel(lvl string) error {
	if err := level.UnmarshalText([]byte(lvl)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Named returns a child of the process logger scoped to one component.
func Named(name string) *zap.Logger {
	return Log.Named(name)
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Sync() {
	_ = Log.Sync()
}
