// Package logging configures the global zerolog logger shared by the
// gateway and the CLI.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs the global logger. Unknown levels fall back to info.
// Logs go to w, or stderr when w is nil, so stdout stays clean for piping.
func Setup(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if w == nil {
		w = os.Stderr
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}
