// Package logging provides the structured logger shared by every batchgen
// component: zap underneath, console and rotated-file output, and automatic
// redaction of cookies and access tokens.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger and redacts sensitive field values before they
// reach any output.
//
// Example:
//
//	logger, err := NewLogger(Options{Development: true, FilePath: "batchgen.log"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("run started", zap.String("run_id", id))
type Logger struct {
	zap *zap.Logger
}

// Options configures NewLogger.
type Options struct {
	// Development selects the colored console encoder and debug level.
	Development bool

	// FilePath is the JSON log file. Empty disables file output.
	FilePath string

	// Level overrides the environment default ("debug", "info", "warn", "error").
	Level string

	// File controls rotation of FilePath.
	File FileWriterConfig
}

// NewLogger builds a Logger that tees to stdout and, when FilePath is set,
// to a lumberjack-rotated JSON file.
func NewLogger(opts Options) (*Logger, error) {
	level := InfoLevel
	if opts.Development {
		level = DebugLevel
	}
	level = ParseLogLevelString(opts.Level, level)

	core, err := newTeeCore(level, opts)
	if err != nil {
		return nil, fmt.Errorf("logging: failed to create log core: %w", err)
	}

	return &Logger{
		zap: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
	}, nil
}

// NewFromZap wraps an existing zap logger. Tests use it with zaptest.NewLogger
// and observer cores.
func NewFromZap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{zap: z.WithOptions(zap.AddCallerSkip(1))}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, redactFields(fields)...)
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, redactFields(fields)...)
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, redactFields(fields)...)
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, redactFields(fields)...)
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, redactFields(fields)...)
}

// With creates a child logger whose entries always carry fields.
//
// Example:
//
//	rowLog := runLog.With(zap.Int("row", 3), zap.Int("image", 0))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(redactFields(fields)...)}
}

// Named adds a component name that appears as "source" in output.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// Zap returns the underlying zap.Logger for libraries that want one.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// redactFields filters sensitive data from zap.Field values.
func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}

	switch field.Type {
	case zapcore.StringType:
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	case zapcore.ErrorType:
		// errors from HTTP clients routinely echo request headers
		if err, ok := field.Interface.(error); ok && err != nil {
			if redacted := RedactSensitiveData(err.Error()); redacted != err.Error() {
				return zap.String(field.Key, redacted)
			}
		}
	}

	return field
}
