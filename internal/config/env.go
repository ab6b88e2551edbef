/*
PURPOSE:
  Overlays IULOG_* environment variables onto the loaded config.

REQUIREMENTS:
  Implementation-discovered:
  - Precedence: defaults < file < env < flags.
  - IULOG_UNIT_TYPES="" must produce an empty (reject-all) list, not "unset".

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli/root.go

ERROR HANDLING:
  - Malformed values are skipped; Validate catches what remains.

IMPLEMENTATION RULES:
  - LookupEnv for list variables, Getenv elsewhere.

USAGE:
  config.FromEnv(cfg)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/config/config.go

MAINTENANCE:
  - Add a variable here for every new Config field worth overriding.
*/

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/daryltucker/iulog/internal/model"
	"github.com/daryltucker/iulog/internal/output"
)

// FromEnv overlays IULOG_* environment variables onto cfg. Malformed values
// are skipped with a warning so a bad variable never masks the file config.
func FromEnv(cfg *Config) {
	if v := os.Getenv("IULOG_FILENAME"); v != "" {
		cfg.Filename = v
	}
	if v, ok := os.LookupEnv("IULOG_UNIT_TYPES"); ok {
		cfg.Filter.UnitTypes = []model.UnitType{}
		for _, p := range splitList(v) {
			cfg.Filter.UnitTypes = append(cfg.Filter.UnitTypes, model.UnitType(p))
		}
	}
	if v, ok := os.LookupEnv("IULOG_UPDATE_KINDS"); ok {
		kinds := []model.UpdateKind{}
		valid := true
		for _, p := range splitList(v) {
			k, err := model.ParseUpdateKind(p)
			if err != nil {
				output.Logger.Warn("Ignoring IULOG_UPDATE_KINDS", "error", err)
				valid = false
				break
			}
			kinds = append(kinds, k)
		}
		if valid {
			cfg.Filter.UpdateKinds = kinds
		}
	}
	if v := os.Getenv("IULOG_WHERE"); v != "" {
		cfg.Filter.Where = v
	}
	if v := os.Getenv("IULOG_INDENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indent = b
		}
	}
	if v := os.Getenv("IULOG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("IULOG_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("IULOG_INDEX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IndexSize = n
		}
	}
	if v := os.Getenv("IULOG_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("IULOG_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("IULOG_TARGET"); v != "" {
		cfg.Target = v
	}
}

// splitList splits a comma separated list, dropping blanks. An empty input
// yields an empty (non-nil) list.
func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
