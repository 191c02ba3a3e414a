// Package log provides structured logging with run context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for enforcement and routing paths
//     (high performance, structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//     (convenience over performance)
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/warden/types"
)

// Logger provides structured logging with run context.
// All log entries include run identity fields (run_id, subsystem, phase).
//
// Use this for guardrail and router paths where performance matters.
// For CLI/debug surfaces, use Sugar() to get a SugaredLogger.
type Logger struct {
	zap *zap.Logger
	// fields are the run context fields, kept so WithOutput can rebuild
	// the logger around a fresh core without losing them.
	fields []zap.Field
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with run context.
// Output defaults to os.Stderr.
func NewLogger(meta *types.RunMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr)
}

// NewPlainLogger creates a logger without run context, for surfaces that
// run outside any run (dashboard indexer, registry maintenance).
func NewPlainLogger() *Logger {
	return &Logger{zap: zap.New(newCore(os.Stderr))}
}

// WithOutput returns a new logger with a different output writer. Run
// context fields carry over.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return &Logger{
		zap:    zap.New(newCore(w)).With(l.fields...),
		fields: l.fields,
	}
}

// EnvLogLevel selects the minimum level: debug, info, warn, or error.
// Unset or unrecognized values mean debug.
const EnvLogLevel = "WARDEN_LOG_LEVEL"

func newCore(w io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		levelFromEnv(),
	)
}

func levelFromEnv() zapcore.Level {
	switch os.Getenv(EnvLogLevel) {
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

// newLoggerWithWriter creates a logger writing to the specified writer.
func newLoggerWithWriter(meta *types.RunMeta, w io.Writer) *Logger {
	contextFields := []zap.Field{
		zap.String("run_id", meta.RunID),
		zap.String("subsystem", meta.Subsystem),
		zap.String("phase", meta.Phase),
	}
	if meta.ParentRunID != nil {
		contextFields = append(contextFields, zap.String("parent_run_id", *meta.ParentRunID))
	}

	zapLogger := zap.New(newCore(w)).With(contextFields...)
	return &Logger{zap: zapLogger, fields: contextFields}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
