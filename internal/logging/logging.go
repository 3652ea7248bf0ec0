// Package logging configures the application loggers: structured JSON output
// for machine consumption and a human-readable text stream for the console.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var structuredLogger *slog.Logger
var humanReadableLogger *slog.Logger

const LevelFatal = slog.Level(12)

var levelNames = map[slog.Leveler]string{
	LevelFatal: "FATAL",
}

// replaceLevelAttr maps the custom FATAL level to its display name.
func replaceLevelAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

// swappableWriter lets the output destination change after handlers, and the
// per-service loggers built on them, already exist.
type swappableWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swappableWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *swappableWriter) swap(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

var structuredOut = &swappableWriter{w: os.Stdout}
var humanReadableOut = &swappableWriter{w: os.Stderr}

// Loggers must exist before dependent packages create their service loggers
// in their own init functions.
func init() {
	Init()
}

// Init builds the logging system: JSON to stdout at debug, text to stderr
// at info.
func Init() {
	structuredLogger = slog.New(slog.NewJSONHandler(structuredOut, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: replaceLevelAttr,
	}))
	humanReadableLogger = slog.New(slog.NewTextHandler(humanReadableOut, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: replaceLevelAttr,
	}))
	slog.SetDefault(structuredLogger)
}

// SetLevel sets the minimum logging level for both loggers.
func SetLevel(level slog.Level) {
	structuredLogger = slog.New(slog.NewJSONHandler(structuredOut, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelAttr,
	}))
	humanReadableLogger = slog.New(slog.NewTextHandler(humanReadableOut, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelAttr,
	}))
	slog.SetDefault(structuredLogger)
}

// SetOutput redirects logger output, e.g. to a buffer in tests. Loggers
// created earlier follow the change.
func SetOutput(structuredOutput, humanReadableOutput io.Writer) {
	structuredOut.swap(structuredOutput)
	humanReadableOut.swap(humanReadableOutput)
}

// EnableFileOutput tees the structured stream into a rotating log file in
// addition to stdout. It returns a function closing the file writer.
func EnableFileOutput(filePath string) (func() error, error) {
	// lumberjack doesn't create directories
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	structuredOut.swap(io.MultiWriter(os.Stdout, logWriter))
	return logWriter.Close, nil
}

// ForService creates a new logger instance with the 'service' attribute added.
// It uses the global structured logger as the base.
func ForService(serviceName string) *slog.Logger {
	if structuredLogger == nil {
		return nil
	}
	return structuredLogger.With("service", serviceName)
}

// --- Convenience functions using the default logger ---

func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Fatal logs a message at the custom Fatal level on both streams and exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	if humanReadableLogger != nil {
		humanReadableLogger.Log(context.TODO(), LevelFatal, msg, args...)
	}
	os.Exit(1)
}
