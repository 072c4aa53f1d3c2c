package telemetry

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with hu-specific fields.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
}

// loggerContextKey is the context key for logger instances.
type loggerContextKey struct{}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: getTimeFormat(cfg.TimeFormat),
		}
	}

	switch cfg.TimeFormat {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "unixms":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	zlog := zerolog.New(writer).With().Timestamp().Logger().Level(ParseLevel(cfg.Level))
	if cfg.EnableCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog, config: cfg}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog exposes the underlying logger for packages that take a
// zerolog.Logger directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// NewComponentLogger creates a child logger for a specific component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Str("component", component).Logger(),
		config: l.config,
	}
}

// WithContext adds the logger to the context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the logger from the context, or a logger writing
// warnings to stderr.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{
		zlog: zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel),
	}
}

// WithField returns a logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Interface(key, value).Logger(),
		config: l.config,
	}
}

// WithSessionID adds a session_id field.
func (l *Logger) WithSessionID(id string) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Str("session_id", id).Logger(),
		config: l.config,
	}
}

// WithRelease adds the release tag and phase.
func (l *Logger) WithRelease(tag, phase string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("release_tag", tag).
			Str("phase", phase).
			Logger(),
		config: l.config,
	}
}

// WithError adds error information to the logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Err(err).Logger(),
		config: l.config,
	}
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.zlog.Debug().Msgf(format, args...) }

// Info logs an info-level message.
func (l *Logger) Info(msg string) { l.zlog.Info().Msg(msg) }

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, args ...interface{}) { l.zlog.Info().Msgf(format, args...) }

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) { l.zlog.Warn().Msg(msg) }

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, args ...interface{}) { l.zlog.Warn().Msgf(format, args...) }

// Error logs an error-level message.
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) { l.zlog.Error().Msgf(format, args...) }

// ParseLevel converts a level name to zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func getTimeFormat(format string) string {
	if format == "unix" {
		return "unix"
	}
	return time.RFC3339
}
