package logging

import (
	"log/slog"
	"strings"
)

// LevelNotice sits between INFO and WARN. Received commands are logged at
// this level so they map onto the syslog NOTICE priority.
const LevelNotice = slog.Level(2)

// ParseLevel maps a configuration level name to a slog level. Unknown
// names fall back to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "crit", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= LevelNotice:
		return "NOTICE"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// ValidLevel reports whether value names a level understood by New.
func ValidLevel(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "debug", "info", "notice", "warn", "warning", "error", "crit", "fatal":
		return true
	default:
		return false
	}
}
