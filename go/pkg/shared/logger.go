package shared

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger returns a component-tagged structured logger. Level comes from
// LOG_LEVEL (debug/info/warn/error), defaulting to info.
func NewLogger(component string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(logLevel(os.Getenv("LOG_LEVEL"))).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func logLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
