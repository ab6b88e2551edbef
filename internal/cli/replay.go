/*
PURPOSE:
  Defines the 'replay' subcommand.
  Logs recorded unit streams (JSONL, optionally .zst) into a JSON array.

REQUIREMENTS:
  User-specified:
  - Same filtering and output format as the live logger.

  Implementation-discovered:
  - --target sends the stream to a running 'serve' instead of a local file.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Replay()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if config load fails, input is malformed or the writer fails.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Engine.Replay.

USAGE:
  iulog replay session.jsonl -o session

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/iulog/internal/engine"
)

var (
	targetOverride    string
	batchSizeOverride int
)

var replayCmd = &cobra.Command{
	Use:   "replay [files...]",
	Short: "Log recorded unit streams into a JSON array file",
	Long: `Reads incremental-unit updates from JSONL files (one update per line) and logs
them through the same filter and writer used by 'serve'. Files ending in .zst are
decompressed on the fly; '-' reads standard input.

The output file is always closed with a terminating ']' once the inputs are
exhausted, even if one of them turns out to be malformed.`,
	Example: `  # Log everything to session.json
  iulog replay session.jsonl -o session

  # Only committed text units
  iulog replay session.jsonl.zst --unit-types TextUnit --update-kinds COMMIT

  # Forward to a running logger
  iulog replay session.jsonl --target http://localhost:8089`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if targetOverride != "" {
			cfg.Target = targetOverride
		}
		if batchSizeOverride > 0 {
			cfg.BatchSize = batchSizeOverride
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stats, err := engine.Replay(ctx, cfg, args)
		if err != nil {
			return err
		}
		out, _ := json.Marshal(stats)
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	addWriterFlags(replayCmd)
	replayCmd.Flags().StringVar(&targetOverride, "target", "", "URL of a running 'iulog serve' to send updates to")
	replayCmd.Flags().IntVar(&batchSizeOverride, "batch-size", 0, "Updates per ingest call")
}
