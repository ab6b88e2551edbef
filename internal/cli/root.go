/*
PURPOSE:
  Defines the root Cobra command for the iulog CLI.
  Handles global flags, config loading and logger setup.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Config precedence: defaults < file < IULOG_* env < flags.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/iulog/main.go
  - Calls: Child commands (replay, serve, status)
  - Modifies: Global configuration state (temporarily, until passed down).

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root is usually empty or helps.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/iulog/main.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"github.com/spf13/cobra"

	"github.com/daryltucker/iulog/internal/config"
	"github.com/daryltucker/iulog/internal/model"
	"github.com/daryltucker/iulog/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile  string
	logLevel string

	// filter overrides shared by replay and serve
	outputOverride     string
	unitTypesOverride  []string
	updateKindOverride []string
	whereOverride      string
	compactOverride    bool

	rootCmd = &cobra.Command{
		Use:   "iulog",
		Short: "Asynchronous JSON logger for incremental units",
		Long: `Logs incremental-unit updates into a single well-formed JSON array file.
Use 'replay --help' to log recorded streams, 'serve --help' to accept updates over HTTP.`,
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./iulog.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

// addWriterFlags registers the flags that shape the output file.
func addWriterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputOverride, "output", "o", "", "Output file (.json is appended if missing)")
	cmd.Flags().StringSliceVar(&unitTypesOverride, "unit-types", nil, "Comma-separated unit types to log (default: all)")
	cmd.Flags().StringSliceVar(&updateKindOverride, "update-kinds", nil, "Comma-separated update kinds to log: ADD,REVOKE,UPDATE,COMMIT (default: all)")
	cmd.Flags().StringVar(&whereOverride, "where", "", "CEL expression records must satisfy, e.g. 'creator == \"asr\"'")
	cmd.Flags().BoolVar(&compactOverride, "compact", false, "Write records without indentation")
}

// loadConfig applies file, environment and flag overrides in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	config.FromEnv(cfg)

	if outputOverride != "" {
		cfg.Filename = outputOverride
	}
	if cmd.Flags().Changed("unit-types") {
		cfg.Filter.UnitTypes = []model.UnitType{}
		for _, t := range unitTypesOverride {
			cfg.Filter.UnitTypes = append(cfg.Filter.UnitTypes, model.UnitType(t))
		}
	}
	if cmd.Flags().Changed("update-kinds") {
		cfg.Filter.UpdateKinds = []model.UpdateKind{}
		for _, k := range updateKindOverride {
			kind, err := model.ParseUpdateKind(k)
			if err != nil {
				return nil, err
			}
			cfg.Filter.UpdateKinds = append(cfg.Filter.UpdateKinds, kind)
		}
	}
	if whereOverride != "" {
		cfg.Filter.Where = whereOverride
	}
	if compactOverride {
		cfg.Indent = false
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lvl, _ := output.ParseLevel(cfg.LogLevel)
	output.SetLevel(lvl)
	return cfg, nil
}
