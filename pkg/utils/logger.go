package utils

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogEnv names the environment variable that overrides the log level.
const LogEnv = "PCADIFFS_LOG"

// ConfigureLogging sets the global zerolog level. The PCADIFFS_LOG
// environment variable wins over level: "off" or "0" disables logging,
// "full" or "debug" enables debug output.
func ConfigureLogging(level string) zerolog.Level {
	if env := strings.TrimSpace(strings.ToLower(os.Getenv(LogEnv))); env != "" {
		level = env
	}
	lvl := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "off", "0", "disabled":
		return zerolog.Disabled
	case "full", "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger for one component writing to w. A nil writer
// logs human readable output to stderr.
func NewLogger(component string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// SetDefault installs l as the package level logger used by zerolog/log.
func SetDefault(l zerolog.Logger) {
	log.Logger = l
}
