// Package logging owns the process-wide zerolog logger.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/noahsadir/courseman/internal/oops"
)

func init() {
	zerolog.ErrorStackMarshaler = oops.StackOf
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// Init configures the global logger. Pretty output is meant for development
// terminals; everything else gets one JSON object per line.
func Init(level zerolog.Level, pretty bool) {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level)
}

func GlobalLogger() *zerolog.Logger {
	return &log.Logger
}

func Debug() *zerolog.Event {
	return log.Debug().Stack()
}

func Info() *zerolog.Event {
	return log.Info().Stack()
}

func Warn() *zerolog.Event {
	return log.Warn().Stack()
}

func Error() *zerolog.Event {
	return log.Error().Stack()
}

func Fatal() *zerolog.Event {
	return log.Fatal().Stack()
}

func With() zerolog.Context {
	return log.With().Stack()
}

// AttachLoggerToContext stores logger on ctx for ExtractLogger.
func AttachLoggerToContext(logger *zerolog.Logger, ctx context.Context) context.Context {
	return logger.WithContext(ctx)
}

// ExtractLogger returns the request-scoped logger, or the global one.
func ExtractLogger(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return GlobalLogger()
	}
	l := zerolog.Ctx(ctx)
	if l == nil || l.GetLevel() == zerolog.Disabled {
		return GlobalLogger()
	}
	return l
}

func LogPanics(logger *zerolog.Logger) {
	if r := recover(); r != nil {
		LogPanicValue(logger, r, "recovered from panic")
	}
}

func LogPanicValue(logger *zerolog.Logger, val interface{}, msg string) {
	if logger == nil {
		logger = GlobalLogger()
	}

	if err, ok := val.(error); ok {
		l := logger.Error().Err(err)
		if oops.StackOf(err) == nil {
			l = l.Interface(zerolog.ErrorStackFieldName, oops.Here())
		}
		l.Msg(msg)
	} else {
		logger.Error().
			Interface("recovered", val).
			Interface(zerolog.ErrorStackFieldName, oops.Here()).
			Msg(msg)
	}
}
