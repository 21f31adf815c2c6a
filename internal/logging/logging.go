// Package logging configures the global zerolog logger used across homestead.
//
// Output goes to stderr in console format so that command output (tables,
// YAML, JSON) on stdout stays machine-consumable.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger. With verbose enabled the level drops
// to Debug, otherwise Info.
func Setup(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}

	log.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
