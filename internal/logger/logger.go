package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Level string
	// Logger receives JSON encoded log lines in addition to the console output; usually a lumberjack.Logger
	Logger io.Writer
	// Quiet disables the console output
	Quiet bool
}

var current atomic.Pointer[zap.SugaredLogger]

func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "silly", "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
}

func Init(options Options) {
	level, levelErr := ParseLevel(options.Level)

	var cores []zapcore.Core
	if !options.Quiet {
		consoleConfig := zap.NewDevelopmentEncoderConfig()
		consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stdout), level))
	}
	if options.Logger != nil {
		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), zapcore.AddSync(options.Logger), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	current.Store(logger.Sugar())

	if levelErr != nil {
		Warn(levelErr.Error() + ", falling back to info")
	}
}

func get() *zap.SugaredLogger {
	return current.Load()
}

func Sync() {
	if logger := get(); logger != nil {
		_ = logger.Sync()
	}
}

func Fatal(message string) {
	if logger := get(); logger != nil {
		logger.Fatal(message)
	}
	os.Exit(1)
}

func Fatalf(format string, args ...any) {
	Fatal(fmt.Sprintf(format, args...))
}

func Error(message string) {
	if logger := get(); logger != nil {
		logger.Error(message)
	}
}

func Errorf(format string, args ...any) {
	if logger := get(); logger != nil {
		logger.Errorf(format, args...)
	}
}

func Warn(message string) {
	if logger := get(); logger != nil {
		logger.Warn(message)
	}
}

func Warnf(format string, args ...any) {
	if logger := get(); logger != nil {
		logger.Warnf(format, args...)
	}
}

func Info(message string) {
	if logger := get(); logger != nil {
		logger.Info(message)
	}
}

func Infof(format string, args ...any) {
	if logger := get(); logger != nil {
		logger.Infof(format, args...)
	}
}

func Debug(message string) {
	if logger := get(); logger != nil {
		logger.Debug(message)
	}
}

func Debugf(format string, args ...any) {
	if logger := get(); logger != nil {
		logger.Debugf(format, args...)
	}
}
