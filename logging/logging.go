// Package logging builds the process logger: human-readable lines on stdout
// at the requested level, plus warnings and errors appended to an error log.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogFilePerm = 0o644
	defaultLogDirPerm  = 0o755
)

// New creates the logger. An empty errorLog disables the error log file.
func New(level, errorLog string) (*zap.Logger, func(), error) {
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(lvl)),
	}

	closeFn := func() {}
	if errorLog != "" {
		if err := os.MkdirAll(filepath.Dir(errorLog), defaultLogDirPerm); err != nil {
			return nil, nil, fmt.Errorf("failed to create error log directory: %w", err)
		}
		file, err := os.OpenFile(errorLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultLogFilePerm)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open error log %s: %w", errorLog, err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), zapcore.WarnLevel))
		closeFn = func() { _ = file.Close() }
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}
