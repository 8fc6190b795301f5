package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Everything at or above level goes to
// stdout; when logPath is set, info, error and debug records are also split
// into info.log, error.log and debug.log under it.
func NewLogger(logPath string, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleCfg),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= lvl }),
	)

	if logPath == "" {
		return zap.New(console), nil
	}

	if err := os.MkdirAll(logPath, 0744); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", logPath, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	infoOut := zapcore.AddSync(openLogFile(filepath.Join(logPath, "info.log")))
	errorOut := zapcore.AddSync(openLogFile(filepath.Join(logPath, "error.log")))
	dbgOut := zapcore.AddSync(openLogFile(filepath.Join(logPath, "debug.log")))

	infoLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= lvl && (l == zapcore.InfoLevel || l == zapcore.WarnLevel)
	})
	errLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })
	dbgLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= lvl && l == zapcore.DebugLevel })

	tee := zapcore.NewTee(
		console,
		zapcore.NewCore(encoder, infoOut, infoLv),
		zapcore.NewCore(encoder, errorOut, errLv),
		zapcore.NewCore(encoder, dbgOut, dbgLv),
	)
	return zap.New(tee), nil
}

func openLogFile(path string) *os.File {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file %s: %v", path, err)
		return os.Stdout
	}
	return f
}
