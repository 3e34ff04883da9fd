// Package logger provides structured logging setup.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures an additional rotating JSON log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New creates a new structured logger.
func New(development bool) (*zap.Logger, error) {
	return build(development, resolveLevel(development))
}

// NewWithFile creates a logger that also writes JSON lines to a rotating file.
// An empty path behaves like New.
func NewWithFile(development bool, file FileOptions) (*zap.Logger, error) {
	if file.Path == "" {
		return New(development)
	}
	level := resolveLevel(development)
	base, err := build(development, level)
	if err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   true,
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(productionEncoderConfig()),
		zapcore.AddSync(rotator),
		level,
	)

	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

func build(development bool, level zap.AtomicLevel) (*zap.Logger, error) {
	var config zap.Config

	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig = productionEncoderConfig()
	}
	config.Level = level

	return config.Build()
}

func productionEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

// resolveLevel honours LOG_LEVEL, falling back to debug in development and info otherwise.
func resolveLevel(development bool) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if development {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		var zapLevel zapcore.Level
		if err := zapLevel.UnmarshalText([]byte(raw)); err == nil {
			level.SetLevel(zapLevel)
		}
	}
	return level
}
