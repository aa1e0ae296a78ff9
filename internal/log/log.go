// Package log provides special log formatting features for AugMediaPlayer.
package log

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// Setup replaces the destination and minimum level of all log output. An
// unknown level falls back to info.
func Setup(w io.Writer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: w != os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

// Tprintf prints its arguments in the manner of [fmt.Printf], tagged with a src
// field of the form "Type(0xabcd...)" indicating the element type and address
// of the src pointer. This can be a convenient way to differentiate instances
// of the same type, though addresses are somewhat opaque as identifiers.
func Tprintf[T any](src *T, format string, v ...any) {
	logger.Info().Str("src", typeTag(src)).Msgf(format, v...)
}

// Tdebugf is like Tprintf, but only prints at the debug level.
func Tdebugf[T any](src *T, format string, v ...any) {
	logger.Debug().Str("src", typeTag(src)).Msgf(format, v...)
}

// Printf prints an untagged informational line.
func Printf(format string, v ...any) {
	logger.Info().Msgf(format, v...)
}

// Errorf prints an untagged error line.
func Errorf(format string, v ...any) {
	logger.Error().Msgf(format, v...)
}

// Fatalf prints an untagged error line and exits the process.
func Fatalf(format string, v ...any) {
	logger.Fatal().Msgf(format, v...)
}

func typeTag[T any](src *T) string {
	return fmt.Sprintf("%s(%p)", reflect.TypeFor[T]().Name(), src)
}
