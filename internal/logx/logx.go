// Package logx builds the zerolog loggers used by authcore binaries.
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger tagged with environment. Production output
// is uncoloured and starts at info level; everything else logs debug.
func New(environment string) zerolog.Logger {
	return NewWriter(os.Stdout, environment)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, environment string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}

	level := zerolog.DebugLevel
	if environment == "production" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(output).Level(level).With().
		Timestamp().
		Str("env", environment).
		Logger()
}
