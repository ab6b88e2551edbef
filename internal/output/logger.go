/*
PURPOSE:
  Provides the structured logger for iulog.
  Wraps slog for consistent output.

REQUIREMENTS:
  User-specified:
  - Quiet by default. The logger's own diagnostics must never end up in the
    JSON array it writes.

  Implementation-discovered:
  - Level must be adjustable at runtime from config and --log-level.

ARCHITECTURE INTEGRATION:
  - Used everywhere.

ERROR HANDLING:
  - ParseLevel returns an error for unknown level names.

IMPLEMENTATION RULES:
  - Use `log/slog` (Go 1.21+).
  - Write to stderr; stdout is left to command output.

USAGE:
  output.Logger.Info("message", "key", "value")
  output.SetLevel(slog.LevelDebug)

SELF-HEALING INSTRUCTIONS:
  - Ensure Go 1.21+ is used.

RELATED FILES:
  - All.

MAINTENANCE:
  - JSON handler for non-interactive use?
*/

package output

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var (
	Logger *slog.Logger
	level  = new(slog.LevelVar)
)

func init() {
	level.Set(slog.LevelInfo)
	Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLogger allows overriding the default logger (e.g. for testing or config changes)
func SetLogger(l *slog.Logger) {
	Logger = l
}

// SetLevel changes the minimum level of the default logger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
