package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

type Fields map[string]interface{}

// New builds the process logger. Local runs get a human readable console
// writer at debug level, everything else JSON at info.
func New(env string) Logger {
	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if env == "local" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Nop discards everything; tests use it.
func Nop() Logger { return zerolog.Nop() }

func With(logger Logger, fields Fields) Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}
